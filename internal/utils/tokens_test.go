package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "abc", 1},
		{"record", "PolicyID: 1\nGender: M", 5},
		{"long", strings.Repeat("a", 4000), 1000},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, utils.CountTokens(c.in), c.name)
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 1000)
	trunc := utils.TruncateToTokenLimit(text, 300)
	assert.LessOrEqual(t, utils.CountTokens(trunc), 300)
	assert.NotEmpty(t, trunc)
	assert.Equal(t, "short", utils.TruncateToTokenLimit("short", 10))
	assert.Empty(t, utils.TruncateToTokenLimit("anything", 0))
}
