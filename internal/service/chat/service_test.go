package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/apt-chat/backend/internal/service/ai"
	chat "github.com/zhouzirui/apt-chat/backend/internal/service/chat"
	"github.com/zhouzirui/apt-chat/backend/internal/service/session"
)

type fakeReplier struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeReplier) Reply(_ context.Context, persona, message string) (string, error) {
	f.calls++
	f.last = persona + ":" + message
	return f.reply, f.err
}

type auditRecord struct {
	persona, user, bot, addr string
}

type fakeAudit struct {
	records []auditRecord
}

func (f *fakeAudit) LogConversation(persona, userMessage, botResponse, clientAddr string) {
	f.records = append(f.records, auditRecord{persona, userMessage, botResponse, clientAddr})
}

func newService(t *testing.T, replier chat.Replier) (*chat.Service, *session.Store, *fakeAudit) {
	t.Helper()
	store, err := session.NewStore(t.TempDir(), nil, nil)
	require.NoError(t, err)
	audit := &fakeAudit{}
	return chat.NewService(replier, store, audit, chat.Limits{MaxLength: 1000, MinLength: 1}, nil), store, audit
}

func TestDispatchCreatesSession(t *testing.T) {
	replier := &fakeReplier{reply: "hey there"}
	svc, store, audit := newService(t, replier)
	ctx := context.Background()

	res, err := svc.Dispatch(ctx, chat.Request{Message: "<b>hello</b>", ChatbotType: "student"}, "", "192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, "hey there", res.BotResponse)
	assert.True(t, session.ValidID(res.SessionID))
	assert.Equal(t, "student:hello", replier.last)

	_, ok := store.SessionFilePath(res.SessionID)
	assert.True(t, ok)
	require.Len(t, audit.records, 1)
	assert.Equal(t, "hello", audit.records[0].user)

	// The same session keeps collecting entries.
	next, err := svc.Dispatch(ctx, chat.Request{Message: "again", ChatbotType: "student"}, res.SessionID, "192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, next.SessionID)
}

func TestDispatchRehomesCompletedSession(t *testing.T) {
	svc, store, _ := newService(t, &fakeReplier{reply: "ok"})
	ctx := context.Background()

	first, err := svc.Dispatch(ctx, chat.Request{Message: "hi", ChatbotType: "ai"}, "", "127.0.0.1")
	require.NoError(t, err)
	require.NoError(t, store.EndSession(ctx, first.SessionID))

	second, err := svc.Dispatch(ctx, chat.Request{Message: "hi", ChatbotType: "ai"}, first.SessionID, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	third, err := svc.Dispatch(ctx, chat.Request{Message: "hi", ChatbotType: "ai"}, "../../etc", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, session.ValidID(third.SessionID))
}

func TestDispatchScriptedScenario(t *testing.T) {
	replier := &fakeReplier{reply: "model"}
	svc, _, _ := newService(t, replier)

	res, err := svc.Dispatch(context.Background(), chat.Request{
		Message:     "Sorry, I'm driving tonight",
		ChatbotType: "ai",
		Context:     map[string]any{"party_scenario": float64(1)},
	}, "", "127.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, res.BotResponse, "safety is always a good reason")
	assert.Zero(t, replier.calls, "scripted replies must not reach the model")
}

func TestDispatchOutOfRangeScenarioUsesModel(t *testing.T) {
	replier := &fakeReplier{reply: "model"}
	svc, _, _ := newService(t, replier)

	res, err := svc.Dispatch(context.Background(), chat.Request{
		Message:     "i'm driving",
		ChatbotType: "ai",
		Context:     map[string]any{"party_scenario": float64(9)},
	}, "", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "model", res.BotResponse)
	assert.Equal(t, 1, replier.calls)
}

func TestDispatchValidation(t *testing.T) {
	svc, _, audit := newService(t, &fakeReplier{reply: "ok"})
	ctx := context.Background()

	_, err := svc.Dispatch(ctx, chat.Request{Message: "hi", ChatbotType: "pirate"}, "", "")
	assert.ErrorIs(t, err, chat.ErrInvalidPersona)

	_, err = svc.Dispatch(ctx, chat.Request{Message: "<script></script>", ChatbotType: "ai"}, "", "")
	assert.ErrorIs(t, err, chat.ErrMessageRequired)

	_, err = svc.Dispatch(ctx, chat.Request{Message: 42, ChatbotType: "ai"}, "", "")
	assert.ErrorIs(t, err, chat.ErrMessageRequired)

	assert.Empty(t, audit.records)
}

func TestDispatchMinimumLength(t *testing.T) {
	store, err := session.NewStore(t.TempDir(), nil, nil)
	require.NoError(t, err)
	svc := chat.NewService(&fakeReplier{reply: "ok"}, store, nil, chat.Limits{MaxLength: 100, MinLength: 3}, nil)

	_, err = svc.Dispatch(context.Background(), chat.Request{Message: "hi", ChatbotType: "ai"}, "", "")
	assert.ErrorIs(t, err, chat.ErrMessageTooShort)
}

func TestDispatchPropagatesGatewayErrors(t *testing.T) {
	upstream := &fakeReplier{err: ai.ErrUpstream}
	svc, store, audit := newService(t, upstream)

	_, err := svc.Dispatch(context.Background(), chat.Request{Message: "hi", ChatbotType: "doctor"}, "", "")
	assert.True(t, errors.Is(err, ai.ErrUpstream))
	assert.Empty(t, audit.records)

	listing, err := store.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, listing.Active)
}

func TestEndSessionIgnoresUnknown(t *testing.T) {
	svc, _, _ := newService(t, &fakeReplier{reply: "ok"})
	ctx := context.Background()

	assert.NoError(t, svc.EndSession(ctx, ""))
	assert.NoError(t, svc.EndSession(ctx, "garbage"))
	assert.NoError(t, svc.EndSession(ctx, "4b0c2c8e-6d43-4c1e-9f43-6a2f4f3d8a11"))
}
