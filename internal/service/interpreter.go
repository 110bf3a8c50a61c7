package service

import (
	"regexp"
	"strings"

	"github.com/verdealab/ceres/internal/domain/routing"
)

// Interpretation is the parsed meaning of one step's output.
type Interpretation struct {
	// NeedsInput is set when the output asks the human a specific
	// question; InputPrompt carries the extracted question.
	NeedsInput  bool
	InputPrompt string

	// NextSteps holds the recommended follow-up work, in order.
	NextSteps []StepProposal
}

// StepProposal is one recommended follow-up step.
type StepProposal struct {
	Role        routing.AgentRole
	Description string
}

// Interpreter extracts control-flow signals from free-text step output.
// The heuristics live behind this interface so they stay independently
// testable and replaceable; extraction finding nothing is a soft failure
// the engine recovers from with a default step, never an error.
type Interpreter interface {
	Interpret(text string) Interpretation
}

// inputMarkers are the fixed phrases indicating a human must answer a
// specific question. The substring after the marker becomes the prompt.
var inputMarkers = []string{
	"[user input]",
	"question for the user:",
	"pergunta para o usuário:",
}

// nextAgentPattern matches "next agent: <role> - <description>" lines.
var nextAgentPattern = regexp.MustCompile(`(?im)^\s*next agent:\s*([a-zA-Zçã]+)\s*[-–:]\s*(.+)$`)

// planLinePattern matches numbered "<n>. <description> - <role>" plan lines.
var planLinePattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+?)\s*[-–]\s*([a-zA-Zçã]+)\s*$`)

// markerInterpreter is the default Interpreter. It depends on providers
// echoing role names in the expected textual formats; when a provider
// paraphrases, extraction finds nothing and the engine substitutes a
// generic step. That soft-failure mode is inherent to the design.
type markerInterpreter struct{}

// NewInterpreter creates the default marker-phrase interpreter.
func NewInterpreter() Interpreter {
	return markerInterpreter{}
}

func (markerInterpreter) Interpret(text string) Interpretation {
	if prompt, ok := extractInputPrompt(text); ok {
		return Interpretation{NeedsInput: true, InputPrompt: prompt}
	}
	return Interpretation{NextSteps: extractNextSteps(text)}
}

// extractInputPrompt scans for the first input marker and returns the
// text following it, trimmed to the end of its line block.
func extractInputPrompt(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, marker := range inputMarkers {
		idx := strings.Index(lowered, marker)
		if idx < 0 {
			continue
		}
		prompt := strings.TrimSpace(text[idx+len(marker):])
		if nl := strings.IndexByte(prompt, '\n'); nl >= 0 {
			prompt = strings.TrimSpace(prompt[:nl])
		}
		if prompt == "" {
			prompt = "Additional input is required to continue."
		}
		return prompt, true
	}
	return "", false
}

// extractNextSteps parses both supported layouts: explicit "next agent"
// recommendations and numbered plan lines. Unrecognized role names are
// skipped rather than guessed.
func extractNextSteps(text string) []StepProposal {
	var out []StepProposal

	for _, m := range nextAgentPattern.FindAllStringSubmatch(text, -1) {
		role := routing.AgentRole(strings.ToLower(strings.TrimSpace(m[1])))
		if !role.Valid() {
			continue
		}
		out = append(out, StepProposal{Role: role, Description: strings.TrimSpace(m[2])})
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range planLinePattern.FindAllStringSubmatch(text, -1) {
		role := routing.AgentRole(strings.ToLower(strings.TrimSpace(m[2])))
		if !role.Valid() {
			continue
		}
		out = append(out, StepProposal{Role: role, Description: strings.TrimSpace(m[1])})
	}
	return out
}

// hasContinuationMarker reports whether the text announces follow-up
// agents at all, recognized or not. The engine uses this to distinguish
// "task is done" from "handoff intended but unparseable".
func hasContinuationMarker(text string) bool {
	return strings.Contains(strings.ToLower(text), "next agent:")
}
