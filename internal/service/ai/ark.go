package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
)

// arkCompleter runs a system+user prompt template through an Ark chat model.
type arkCompleter struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newArkCompleter(ctx context.Context, cfg config.AIConfig) (*arkCompleter, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &arkCompleter{chain: runnable}, nil
}

func (c *arkCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": system,
		"query":  user,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
