package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short string unchanged", "a red fox", 80, "a red fox"},
		{"exact length unchanged", "abcde", 5, "abcde"},
		{"ascii truncated", "a red fox in a dark forest", 12, "a red fox..."},
		{"multi-byte rune not split", "ein großer Bär im Wald", 14, "ein großer..."},
		{"cut lands inside a rune", "日本語のテキスト", 8, "日..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}
