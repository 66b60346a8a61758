package agent

import (
	"context"
	"fmt"
	"testing"

	"crmagent/internal/gemini"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM plays back a fixed sequence of model responses and records
// the requests it receives.
type scriptedLLM struct {
	responses []*gemini.GenerateContentResponse
	requests  []*gemini.GenerateContentRequest
}

func (s *scriptedLLM) GenerateContent(_ context.Context, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type recordingCaller struct {
	calls []string
	args  []map[string]interface{}
	reply string
	err   error
}

func (r *recordingCaller) CallTool(_ context.Context, name string, args map[string]interface{}) (string, error) {
	r.calls = append(r.calls, name)
	r.args = append(r.args, args)
	return r.reply, r.err
}

func textResponse(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{
		Candidates: []gemini.Candidate{{
			Content: gemini.Content{
				Role:  "model",
				Parts: []gemini.ContentPart{{Text: text}},
			},
		}},
	}
}

func toolCallResponse(name string, args map[string]interface{}) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{
		Candidates: []gemini.Candidate{{
			Content: gemini.Content{
				Role:  "model",
				Parts: []gemini.ContentPart{{FunctionCall: &gemini.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

func crmTools() []mcp.Tool {
	return []mcp.Tool{{
		Name:        "search_leads",
		Description: "Search CRM leads",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
			Required: []string{"query"},
		},
	}}
}

func TestAgentAnswersDirectly(t *testing.T) {
	llm := &scriptedLLM{responses: []*gemini.GenerateContentResponse{textResponse("All done.")}}
	caller := &recordingCaller{}

	a, err := NewAgent(llm, caller, crmTools())
	require.NoError(t, err)

	answer, history, err := a.Run(context.Background(), nil, "say hi")
	require.NoError(t, err)
	assert.Equal(t, "All done.", answer)
	assert.Empty(t, caller.calls)

	// user turn + model turn
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	// The converted tool surface is sent with every request.
	require.Len(t, llm.requests, 1)
	require.Len(t, llm.requests[0].Tools, 1)
	assert.Equal(t, "search_leads", llm.requests[0].Tools[0].FunctionDeclarations[0].Name)
}

func TestAgentExecutesToolCalls(t *testing.T) {
	llm := &scriptedLLM{responses: []*gemini.GenerateContentResponse{
		toolCallResponse("search_leads", map[string]interface{}{"query": "acme"}),
		textResponse("Found 2 leads at Acme."),
	}}
	caller := &recordingCaller{reply: `[{"name":"Acme Lead"}]`}

	a, err := NewAgent(llm, caller, crmTools())
	require.NoError(t, err)

	answer, history, err := a.Run(context.Background(), nil, "find acme leads")
	require.NoError(t, err)
	assert.Equal(t, "Found 2 leads at Acme.", answer)

	require.Equal(t, []string{"search_leads"}, caller.calls)
	assert.Equal(t, map[string]interface{}{"query": "acme"}, caller.args[0])

	// user, model(tool call), user(tool result), model(answer)
	require.Len(t, history, 4)
	toolResult := history[2].Parts[0].FunctionResponse
	require.NotNil(t, toolResult)
	assert.Equal(t, "search_leads", toolResult.Name)
	assert.Equal(t, caller.reply, toolResult.Response["result"])
}

func TestAgentReportsToolErrorsToModel(t *testing.T) {
	llm := &scriptedLLM{responses: []*gemini.GenerateContentResponse{
		toolCallResponse("search_leads", map[string]interface{}{"query": "acme"}),
		textResponse("The CRM rejected the search."),
	}}
	caller := &recordingCaller{err: fmt.Errorf("tool error: invalid query")}

	a, err := NewAgent(llm, caller, crmTools())
	require.NoError(t, err)

	answer, history, err := a.Run(context.Background(), nil, "find acme leads")
	require.NoError(t, err)
	assert.Equal(t, "The CRM rejected the search.", answer)

	toolResult := history[2].Parts[0].FunctionResponse
	require.NotNil(t, toolResult)
	assert.Contains(t, toolResult.Response["error"], "invalid query")
}

func TestAgentStopsAfterMaxRounds(t *testing.T) {
	// The model keeps requesting tools and never answers.
	var responses []*gemini.GenerateContentResponse
	for i := 0; i < maxToolRounds+1; i++ {
		responses = append(responses, toolCallResponse("search_leads", nil))
	}
	llm := &scriptedLLM{responses: responses}

	a, err := NewAgent(llm, &recordingCaller{}, crmTools())
	require.NoError(t, err)

	_, _, err = a.Run(context.Background(), nil, "loop forever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool rounds")
}

func TestRefinePromptFallsBackToInput(t *testing.T) {
	llm := &staticTextLLM{reply: "   "}

	refined, err := RefinePrompt(context.Background(), llm, "add a lead for Jane")
	require.NoError(t, err)
	assert.Equal(t, "add a lead for Jane", refined)
}

type staticTextLLM struct {
	reply string
}

func (s *staticTextLLM) GenerateText(_ context.Context, _ string) (string, error) {
	return s.reply, nil
}
