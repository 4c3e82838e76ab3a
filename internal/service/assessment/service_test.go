package assessment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSteps(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assessment_data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStep(t *testing.T) {
	path := writeSteps(t, `{"intro_1": {"question": "How often?", "options": ["never", "often"]}, "empty": null}`)
	svc := NewService(path, true)

	step, err := svc.Step("intro_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"question": "How often?", "options": ["never", "often"]}`, string(step))

	_, err = svc.Step("missing")
	assert.ErrorIs(t, err, ErrStepNotFound)

	_, err = svc.Step("empty")
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestStepRejectsBadKeys(t *testing.T) {
	svc := NewService(writeSteps(t, `{}`), true)

	_, err := svc.Step("")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = svc.Step(nil)
	assert.ErrorIs(t, err, ErrMissingKey)

	for _, key := range []any{"../etc/passwd", "a-b", 12, string(make([]byte, 51))} {
		_, err = svc.Step(key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %v", key)
	}
}

func TestStepDisabledAndBrokenData(t *testing.T) {
	_, err := NewService("unused.json", false).Step("intro_1")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = NewService(filepath.Join(t.TempDir(), "nope.json"), true).Step("intro_1")
	assert.ErrorIs(t, err, ErrData)

	_, err = NewService(writeSteps(t, `{not json`), true).Step("intro_1")
	assert.ErrorIs(t, err, ErrData)
}
