package interpreter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// completer is the slice of the OpenAI client this package uses.
type completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI interprets messages with an OpenAI-compatible chat completions API.
type OpenAI struct {
	completions completer
	model       string
}

// OpenAIConfig configures the OpenAI interpreter. BaseURL may point at any
// compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAI builds an OpenAI interpreter.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("interpreter.NewOpenAI: OPENAI_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	client := openai.NewClient(opts...)
	return &OpenAI{completions: &client.Chat.Completions, model: model}, nil
}

// Interpret sends the session tail as a chat completion and parses the answer.
func (o *OpenAI) Interpret(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemInstructions + "\n\n" + tripContext(req)),
	}
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Text))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		}
	}

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	})
	if err != nil {
		return domain.Interpretation{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Interpretation{}, fmt.Errorf("%w: no choices in completion", domain.ErrInterpreterFailure)
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}
