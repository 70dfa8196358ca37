package interpreter

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// ChatModel interprets messages with any eino chat model.
type ChatModel struct {
	model model.BaseChatModel
}

// NewChatModel wraps an eino chat model.
func NewChatModel(m model.BaseChatModel) *ChatModel {
	return &ChatModel{model: m}
}

// ArkConfig configures a Volcengine Ark chat model.
type ArkConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Region  string
}

// NewArk builds a ChatModel interpreter backed by Ark.
func NewArk(ctx context.Context, cfg ArkConfig) (*ChatModel, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("interpreter.NewArk: ARK_API_KEY and ARK_MODEL are required")
	}
	m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Region:  cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("interpreter.NewArk: %w", err)
	}
	return NewChatModel(m), nil
}

// Interpret sends the session tail to the model and parses its JSON answer.
func (c *ChatModel) Interpret(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error) {
	msgs := make([]*schema.Message, 0, len(req.History)+1)
	msgs = append(msgs, schema.SystemMessage(systemInstructions+"\n\n"+tripContext(req)))
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Text))
		case domain.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
		}
	}

	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return domain.Interpretation{}, classify(ctx, err)
	}
	if resp == nil {
		return domain.Interpretation{}, fmt.Errorf("%w: empty model response", domain.ErrInterpreterFailure)
	}
	return parseAnswer(resp.Content)
}
