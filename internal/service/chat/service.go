package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/analysis/scenario"
	"github.com/zhouzirui/apt-chat/backend/internal/service/session"
	"github.com/zhouzirui/apt-chat/backend/internal/validate"
)

var (
	ErrInvalidPersona  = errors.New("invalid chatbot type")
	ErrMessageRequired = errors.New("message is required")
	ErrMessageTooShort = errors.New("message is too short")
)

// Replier produces a persona-styled reply for a user message.
type Replier interface {
	Reply(ctx context.Context, persona, message string) (string, error)
}

// SessionStore is the part of *session.Store the dispatcher needs.
type SessionStore interface {
	CreateSession(ctx context.Context, clientAddr string) (string, error)
	LogConversation(ctx context.Context, in session.LogInput) (bool, error)
	EndSession(ctx context.Context, id string) error
}

// AuditLog receives every exchange, independent of sessions.
type AuditLog interface {
	LogConversation(persona, userMessage, botResponse, clientAddr string)
}

// Request is the decoded body of a chat call. Fields stay untyped until
// validation so that wrong JSON types degrade the way validate specifies.
type Request struct {
	Message     any `json:"message"`
	ChatbotType any `json:"chatbot_type"`
	RiskScore   any `json:"risk_score,omitempty"`
	Context     any `json:"conversation_context,omitempty"`
}

// Result is returned to the client.
type Result struct {
	BotResponse string `json:"bot_response"`
	SessionID   string `json:"session_id"`
}

// Limits bounds accepted message lengths, in runes.
type Limits struct {
	MaxLength int
	MinLength int
}

// Service validates a chat request, picks the scripted or model reply and
// records the exchange.
type Service struct {
	replier Replier
	store   SessionStore
	audit   AuditLog
	limits  Limits
	logger  *logrus.Entry
}

// NewService wires the dispatcher. audit may be nil.
func NewService(replier Replier, store SessionStore, audit AuditLog, limits Limits, logger *logrus.Entry) *Service {
	if limits.MaxLength <= 0 {
		limits.MaxLength = validate.DefaultMaxLength
	}
	if limits.MinLength <= 0 {
		limits.MinLength = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		replier: replier,
		store:   store,
		audit:   audit,
		limits:  limits,
		logger:  logger.WithField("component", "chat"),
	}
}

// Dispatch handles one exchange. sessionID may be empty or stale; the
// returned Result carries the session the exchange was logged to.
func (s *Service) Dispatch(ctx context.Context, req Request, sessionID, clientAddr string) (Result, error) {
	persona, _ := req.ChatbotType.(string)
	if !validate.Persona(persona) {
		return Result{}, ErrInvalidPersona
	}

	message := validate.SanitizeText(req.Message, s.limits.MaxLength)
	if message == "" {
		return Result{}, ErrMessageRequired
	}
	if len([]rune(message)) < s.limits.MinLength {
		return Result{}, fmt.Errorf("%w: minimum %d characters", ErrMessageTooShort, s.limits.MinLength)
	}

	var riskScore *int
	if score, ok := validate.RiskScore(req.RiskScore); ok {
		riskScore = &score
	}
	convCtx := validate.Context(req.Context)

	reply, err := s.reply(ctx, persona, message, convCtx)
	if err != nil {
		return Result{}, err
	}

	if s.audit != nil {
		s.audit.LogConversation(persona, message, reply, clientAddr)
	}

	in := session.LogInput{
		SessionID:   sessionID,
		Persona:     persona,
		UserMessage: message,
		BotResponse: reply,
		ClientAddr:  clientAddr,
		RiskScore:   riskScore,
		Context:     convCtx,
	}
	id, err := s.record(ctx, in)
	if err != nil {
		return Result{}, err
	}

	return Result{BotResponse: reply, SessionID: id}, nil
}

func (s *Service) reply(ctx context.Context, persona, message string, convCtx map[string]any) (string, error) {
	if n, ok := validate.Scenario(convCtx); ok {
		if reply, ok := scenario.Respond(n, message); ok {
			return reply, nil
		}
	}
	return s.replier.Reply(ctx, persona, message)
}

// record logs to the given session, starting a fresh one when it is
// missing, malformed or already completed.
func (s *Service) record(ctx context.Context, in session.LogInput) (string, error) {
	if in.SessionID != "" && session.ValidID(in.SessionID) {
		ok, err := s.store.LogConversation(ctx, in)
		if err != nil {
			return "", fmt.Errorf("log conversation: %w", err)
		}
		if ok {
			return in.SessionID, nil
		}
		s.logger.WithField("session_id", in.SessionID).Info("session is no longer active, starting a new one")
	}

	id, err := s.store.CreateSession(ctx, in.ClientAddr)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	in.SessionID = id

	ok, err := s.store.LogConversation(ctx, in)
	if err != nil {
		return "", fmt.Errorf("log conversation: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("log conversation: new session %s was not found", id)
	}
	return id, nil
}

// EndSession completes a session. Unknown, malformed or already completed
// sessions are not an error for callers closing a conversation.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := s.store.EndSession(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrInvalidSessionID) {
		return nil
	}
	return err
}
