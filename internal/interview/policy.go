package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightloop/insightloop/internal/llm"
)

// AgentReply is the turn policy's structured output. Concluding is the
// explicit completion signal; the closing-phrase check on Reply remains as a
// backstop for models that close conversationally without setting the flag.
type AgentReply struct {
	Reply      string `json:"reply" jsonschema_description:"The agent's next utterance in the interview."`
	Concluding bool   `json:"concluding" jsonschema_description:"True only if this reply ends the interview."`
}

var agentReplySchema = llm.GenerateSchema[AgentReply]()

// TurnPolicy decides the next agent utterance. It is a pure function of the
// product idea, the persona, the trailing turn history and the latest reply;
// all state lives in its inputs. No retries and no caching: every call is
// keyed on conversation state, which always changes.
type TurnPolicy struct {
	gen           llm.Generator
	temperature   float64
	maxTokens     int
	historyWindow int
	closingPhrase string
}

// NewTurnPolicy builds a policy over the given generator. historyWindow
// bounds how many trailing turns are serialised into each request.
func NewTurnPolicy(gen llm.Generator, temperature float64, maxTokens, historyWindow int, closingPhrase string) *TurnPolicy {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &TurnPolicy{
		gen:           gen,
		temperature:   temperature,
		maxTokens:     maxTokens,
		historyWindow: historyWindow,
		closingPhrase: strings.ToLower(closingPhrase),
	}
}

// OpeningQuestion generates the first agent turn for projects without a
// precomputed guide. Stop sequences on the role prefixes keep the model from
// scripting the respondent's side.
func (p *TurnPolicy) OpeningQuestion(ctx context.Context, project Project) (string, error) {
	text, err := p.gen.Complete(ctx, llm.CompletionRequest{
		Instructions: fmt.Sprintf(openingInstructions, project.Persona.Name, project.Persona.Company, project.ProductIdea),
		Messages:     []llm.Message{{Role: "user", Text: "Begin the interview."}},
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
		Stop:         []string{"\nRespondent:", "\nAgent:"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTurnGeneration, err)
	}
	return text, nil
}

// NextReply produces the agent's reply to the respondent's latest turn,
// which must be the last element of turns.
func (p *TurnPolicy) NextReply(ctx context.Context, project Project, turns []Turn) (AgentReply, error) {
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleRespondent {
		return AgentReply{}, fmt.Errorf("%w: latest turn is not a respondent reply", ErrTurnGeneration)
	}
	latest := turns[len(turns)-1]
	history := turns
	if len(history) > p.historyWindow {
		history = history[len(history)-p.historyWindow:]
	}
	raw, err := p.gen.CompleteJSON(ctx, llm.JSONRequest{
		SchemaName:   "AgentReply",
		Schema:       agentReplySchema,
		Instructions: fmt.Sprintf(interviewerInstructions, project.Persona.Name, project.Persona.Company, project.ProductIdea),
		Input:        fmt.Sprintf(nextReplyInput, renderTranscript(history), latest.Text),
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
	})
	if err != nil {
		return AgentReply{}, fmt.Errorf("%w: %v", ErrTurnGeneration, err)
	}
	var reply AgentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return AgentReply{}, fmt.Errorf("%w: parse reply: %v", ErrTurnGeneration, err)
	}
	reply.Reply = strings.TrimSpace(reply.Reply)
	if reply.Reply == "" {
		return AgentReply{}, fmt.Errorf("%w: empty reply", ErrTurnGeneration)
	}
	return reply, nil
}

// IsClosing reports whether the reply signals interview completion, either
// through the structured flag or the conversational closing phrase.
func (p *TurnPolicy) IsClosing(reply AgentReply) bool {
	if reply.Concluding {
		return true
	}
	return p.closingPhrase != "" && strings.Contains(strings.ToLower(reply.Reply), p.closingPhrase)
}

// renderTranscript serialises turns into the role-prefixed block the prompts
// reference.
func renderTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch t.Role {
		case RoleAgent:
			b.WriteString("Agent: ")
		default:
			b.WriteString("Respondent: ")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
