// Package agent runs natural-language CRM requests through a tool-calling
// loop: the model decides which introspected CRM tools to call, the agent
// executes them against the MCP endpoint and feeds the results back until
// the model produces a final text answer.
package agent

import (
	"context"
	"fmt"

	"crmagent/internal/gemini"
	"crmagent/internal/logger"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// maxToolRounds bounds the tool-calling loop so a confused model cannot
	// spin forever against the CRM.
	maxToolRounds = 8

	systemPrompt = "You are an AI agent that manages a CRM on behalf of the user. " +
		"Use the available tools to search, create and update records. " +
		"When you have enough information, answer the user directly and concisely."
)

// LLM generates model responses. *gemini.Client satisfies it.
type LLM interface {
	GenerateContent(ctx context.Context, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)
}

// ToolCaller executes a named CRM tool. *crm.Client satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Agent drives the tool-calling conversation loop.
type Agent struct {
	llm    LLM
	caller ToolCaller
	tools  []gemini.Tool
}

// NewAgent creates an agent over the given model, tool executor and
// introspected CRM tools.
func NewAgent(llm LLM, caller ToolCaller, tools []mcp.Tool) (*Agent, error) {
	geminiTool, err := ToGeminiTool(tools)
	if err != nil {
		return nil, fmt.Errorf("failed to convert CRM tools: %w", err)
	}

	var toolList []gemini.Tool
	if len(geminiTool.FunctionDeclarations) > 0 {
		toolList = []gemini.Tool{geminiTool}
	}

	return &Agent{
		llm:    llm,
		caller: caller,
		tools:  toolList,
	}, nil
}

// Run appends the user input to the history, executes the tool-calling
// loop and returns the final answer together with the updated history.
func (a *Agent) Run(ctx context.Context, history []gemini.Content, input string) (string, []gemini.Content, error) {
	contents := append(history, gemini.Content{
		Role:  "user",
		Parts: []gemini.ContentPart{{Text: input}},
	})

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.llm.GenerateContent(ctx, &gemini.GenerateContentRequest{
			Contents: contents,
			SystemInstruction: &gemini.SystemInstruction{
				Parts: []gemini.ContentPart{{Text: systemPrompt}},
			},
			Tools: a.tools,
		})
		if err != nil {
			return "", history, err
		}
		if len(resp.Candidates) == 0 {
			return "", history, fmt.Errorf("model returned no candidates")
		}

		modelContent := resp.Candidates[0].Content
		if modelContent.Role == "" {
			modelContent.Role = "model"
		}
		contents = append(contents, modelContent)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return resp.Text(), contents, nil
		}

		// Execute every requested tool and answer with functionResponse
		// parts. Tool failures are reported back to the model instead of
		// aborting, so it can adjust or explain.
		var responseParts []gemini.ContentPart
		for _, call := range calls {
			logger.Get().Debug().Str("tool", call.Name).Msg("Executing CRM tool")

			result, err := a.caller.CallTool(ctx, call.Name, call.Args)
			response := map[string]interface{}{"result": result}
			if err != nil {
				logger.Get().Warn().Err(err).Str("tool", call.Name).Msg("CRM tool failed")
				response = map[string]interface{}{"error": err.Error()}
			}

			responseParts = append(responseParts, gemini.ContentPart{
				FunctionResponse: &gemini.FunctionResponse{
					Name:     call.Name,
					Response: response,
				},
			})
		}

		contents = append(contents, gemini.Content{
			Role:  "user",
			Parts: responseParts,
		})
	}

	return "", history, fmt.Errorf("no final answer after %d tool rounds", maxToolRounds)
}
