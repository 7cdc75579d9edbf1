package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/menuflow/pkg/domain"
)

func TestInput_SizeLimit(t *testing.T) {
	limit := 16

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Input(strings.Repeat("a", tt.inputSize), limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
				assert.ErrorIs(t, err, domain.ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInput_DefaultLimit(t *testing.T) {
	_, err := Input(strings.Repeat("a", DefaultMaxInputSize), 0)
	assert.NoError(t, err)
	_, err = Input(strings.Repeat("a", DefaultMaxInputSize+1), 0)
	assert.Error(t, err)
}

func TestInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Olá, mundo", "Olá, mundo"},
		{"Safe Controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Input(tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestInput_InvalidUTF8(t *testing.T) {
	_, err := Input("\xbd\xb2\x3d\xbc\x20\xe2\x8c\x98", 0)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
