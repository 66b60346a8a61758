package agent

import (
	"context"
	"fmt"
	"strings"
)

const refineInstruction = "You are an expert at translating user requests into clear, actionable instructions " +
	"for an AI agent that manages a CRM. The agent has tools to search, create, and update " +
	"leads, contacts, and deals.\n\n" +
	"Convert the user's input into a precise, step-by-step prompt for the agent. " +
	"If the user input is already clear, just repeat it. " +
	"Do not add any preamble or explanation, just return the refined prompt.\n\n" +
	"User Input: %s"

// TextLLM generates a plain-text completion. *gemini.Client satisfies it.
type TextLLM interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// RefinePrompt converts raw user input into an actionable prompt for the
// tool-calling agent. Falls back to the raw input when the model returns
// nothing.
func RefinePrompt(ctx context.Context, llm TextLLM, userInput string) (string, error) {
	refined, err := llm.GenerateText(ctx, fmt.Sprintf(refineInstruction, userInput))
	if err != nil {
		return "", err
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		return userInput, nil
	}
	return refined, nil
}
