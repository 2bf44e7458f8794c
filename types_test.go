package errorexplorer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type typedError struct{ msg string }

func (e *typedError) Error() string { return e.msg }

func TestMessageFromValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, nilValueMessage},
		{"error", errors.New("boom"), "boom"},
		{"string", "already text", "already text"},
		{"map with message field", map[string]any{"message": "structured"}, "structured"},
		{"string map with message field", map[string]string{"message": "typed"}, "typed"},
		{"map without message field", map[string]any{"code": 5}, `{"code":5}`},
		{"number", 42, "42"},
		{"slice", []int{1, 2}, "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messageFromValue(tt.value))
		})
	}
}

func TestMessageFromValue_EmptyMessageFieldIgnored(t *testing.T) {
	got := messageFromValue(map[string]any{"message": "", "code": 1})
	assert.Equal(t, `{"code":1,"message":""}`, got)
}

func TestNameFromValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, fallbackName},
		{"string", "text panic", fallbackName},
		{"typed error", &typedError{msg: "x"}, "*errorexplorer.typedError"},
		{"map with name field", map[string]any{"name": "ValidationError"}, "ValidationError"},
		{"map without name field", map[string]any{"code": 5}, "map[string]interface {}"},
		{"number", 42, "int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nameFromValue(tt.value))
		})
	}
}

func TestSeverity_Values(t *testing.T) {
	assert.Equal(t, Severity("critical"), SeverityCritical)
	assert.Equal(t, Severity("error"), SeverityError)
	assert.Equal(t, Severity("warning"), SeverityWarning)
	assert.Equal(t, Severity("info"), SeverityInfo)
	assert.Equal(t, Severity("notice"), SeverityNotice)
	assert.Equal(t, Severity("debug"), SeverityDebug)
}
