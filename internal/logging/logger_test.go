package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", true)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("component", "test").Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test", line["component"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	l := New(&bytes.Buffer{}, "chatty", false)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestFromContextCarriesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	assert.Equal(t, "req-42", FromContext(ctx).Data["request_id"])

	_, ok := FromContext(context.Background()).Data["request_id"]
	assert.False(t, ok)
}
