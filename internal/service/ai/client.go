package ai

import (
	"context"
	"fmt"

	"nutriplan/internal/config"
	"nutriplan/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Client talks to one configured completion provider. The "openai" provider
// also covers OpenAI-compatible gateways such as OpenRouter via base_url.
type Client struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	provider  string
	modelName string
}

// NewClient builds a completion client for the named provider. modelName
// overrides the provider's configured default when non-empty. API keys come
// from server config only.
func NewClient(providers map[string]config.ProviderConfig, provider, modelName string) (*Client, error) {
	provCfg, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	var reactAgent *react.Agent
	if tools := initToolsChain(); len(tools) > 0 {
		reactAgent, err = react.NewAgent(context.Background(), &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}

	return &Client{
		chatModel: chatModel,
		agent:     reactAgent,
		provider:  provider,
		modelName: modelName,
	}, nil
}

func (c *Client) Provider() string { return c.provider }
func (c *Client) Model() string    { return c.modelName }

// Generate runs one completion over the full conversation history and
// returns the assistant reply.
func (c *Client) Generate(ctx context.Context, history []*models.Message) (string, error) {
	messages := convertMessages(history)
	var (
		out *schema.Message
		err error
	)
	if c.agent != nil {
		out, err = c.agent.Generate(ctx, messages)
	} else {
		out, err = c.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("empty completion response")
	}
	return out.Content, nil
}

func convertMessages(history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
