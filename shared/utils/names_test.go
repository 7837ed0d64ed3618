package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinNames(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{"empty", nil, ""},
		{"single", []string{"Alice"}, "Alice"},
		{"two", []string{"Alice", "Bob"}, "Alice et Bob"},
		{"three", []string{"A", "B", "C"}, "A, B et C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinNames(tt.input))
		})
	}
}
