package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/internal/logging"
)

var (
	// ErrNotConfigured means no model credential is available.
	ErrNotConfigured = errors.New("model credentials are not configured")
	// ErrUpstream wraps failures of the remote model call, including empty replies.
	ErrUpstream = errors.New("model provider error")
	// ErrUnknownPersona is returned for a persona without a style instruction.
	ErrUnknownPersona = errors.New("invalid chatbot type")
)

// Completer performs one chat completion: system instruction + user text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// StyleSource resolves a persona tag to its style instruction.
type StyleSource interface {
	StyleFor(id string) string
}

// Service wraps the external chat-completion call with a fixed deployment
// configuration.
type Service struct {
	completer Completer
	styles    StyleSource
	model     string
}

// NewService creates the gateway for the configured provider. Missing
// credentials are not an error here: Reply reports ErrNotConfigured instead,
// so the server still boots and serves scripted scenarios and admin routes.
func NewService(ctx context.Context, styles StyleSource, cfg config.AIConfig) (*Service, error) {
	svc := &Service{styles: styles, model: cfg.Model}
	if !cfg.Enabled() {
		return svc, nil
	}

	var err error
	switch cfg.Provider {
	case config.ProviderArk:
		svc.completer, err = newArkCompleter(ctx, cfg)
	default:
		svc.completer = newOpenAICompleter(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s completer: %w", cfg.Provider, err)
	}
	return svc, nil
}

// NewServiceWithCompleter builds a gateway around an arbitrary completer.
func NewServiceWithCompleter(styles StyleSource, completer Completer) *Service {
	return &Service{styles: styles, completer: completer}
}

// Enabled reports whether a completer is wired.
func (s *Service) Enabled() bool {
	return s != nil && s.completer != nil
}

// Reply sends the persona-styled prompt upstream and returns the trimmed reply.
func (s *Service) Reply(ctx context.Context, personaID, message string) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	style := s.styles.StyleFor(personaID)
	if style == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}

	content, err := s.completer.Complete(ctx, style, message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: no content was returned from the API", ErrUpstream)
	}

	logging.FromContext(ctx).WithFields(map[string]any{
		"component": "ai",
		"persona":   personaID,
		"model":     s.model,
		"length":    len(content),
	}).Debug("generated reply")
	return content, nil
}
