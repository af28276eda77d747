package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil input", input: nil, expected: nil},
		{name: "only separators", input: []string{",, ,"}, expected: nil},
		{name: "single value", input: []string{"case_submitted"}, expected: []string{"case_submitted"}},
		{
			name:     "trims and splits",
			input:    []string{" body_admitted , body_removed"},
			expected: []string{"body_admitted", "body_removed"},
		},
		{
			name:     "dedupes across values keeping first position",
			input:    []string{"b,a", "a,c", "b"},
			expected: []string{"b", "a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input, ","))
		})
	}
}
