// Package assessment serves the static step records of the self-assessment flow.
package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zhouzirui/apt-chat/backend/internal/validate"
)

var (
	ErrDisabled     = errors.New("assessment feature is disabled")
	ErrMissingKey   = errors.New("missing stepKey parameter")
	ErrInvalidKey   = errors.New("invalid stepKey format")
	ErrStepNotFound = errors.New("step not found")
	ErrData         = errors.New("failed to load assessment steps")
)

// Service looks steps up in a JSON object keyed by step key. The file is
// read on every call so edits apply without a restart.
type Service struct {
	path    string
	enabled bool
}

func NewService(path string, enabled bool) *Service {
	return &Service{path: path, enabled: enabled}
}

// Step returns the raw JSON record stored under key.
func (s *Service) Step(key any) (json.RawMessage, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	if key == nil || key == "" {
		return nil, ErrMissingKey
	}
	if !validate.StepKey(key) {
		return nil, ErrInvalidKey
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: assessment steps file not found", ErrData)
		}
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}

	var steps map[string]json.RawMessage
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("%w: failed to decode the assessment steps JSON", ErrData)
	}

	step, ok := steps[key.(string)]
	if !ok || isEmpty(step) {
		return nil, ErrStepNotFound
	}
	return step, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`, "false", "0":
		return true
	}
	return false
}
