package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/insightloop/insightloop/config"
)

// Message is one prior utterance handed to the model as conversation history.
type Message struct {
	Role string // "system", "assistant" or "user"
	Text string
}

// CompletionRequest asks for free text. Stop sequences cut the model off
// before it starts simulating the other side of a conversation.
type CompletionRequest struct {
	Instructions string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	Stop         []string
}

// JSONRequest asks for a strict JSON object matching Schema.
type JSONRequest struct {
	SchemaName   string
	Schema       map[string]interface{}
	Instructions string
	Input        string
	Temperature  float64
	MaxTokens    int
}

// Generator is the surface the interview core depends on. The concrete
// Client talks to OpenAI; tests substitute fakes.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	CompleteJSON(ctx context.Context, req JSONRequest) (string, error)
}

// Client wraps the OpenAI SDK with the two request shapes the interview
// pipeline needs. No retry logic: a failed call is surfaced to the caller.
type Client struct {
	api          *openai.Client
	chatModel    string
	extractModel string
}

// NewClient builds a Client from provider configuration.
func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	api := openai.NewClient(opts...)
	return &Client{api: &api, chatModel: cfg.ChatModel, extractModel: cfg.ExtractModel}, nil
}

// Complete requests free text from the chat model.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Text))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion: empty response")
	}
	return text, nil
}

// CompleteJSON requests a strict JSON object from the extract model using a
// schema-constrained response format.
func (c *Client) CompleteJSON(ctx context.Context, req JSONRequest) (string, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   req.SchemaName,
			Schema: req.Schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:        c.extractModel,
		Instructions: openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{Format: format},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := c.api.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("structured completion: %w", err)
	}
	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", errors.New("structured completion: empty response")
	}
	return out, nil
}
