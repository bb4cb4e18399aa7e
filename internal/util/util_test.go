package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimQuotes(t *testing.T) {
	assert.Equal(t, "label", TrimQuotes(`"label"`))
	assert.Equal(t, "label", TrimQuotes(`""label""`))
	assert.Equal(t, "", TrimQuotes(`""`))
	assert.Equal(t, `a"b`, TrimQuotes(`a"b`))
}

func TestFixEscapeQuotes(t *testing.T) {
	assert.Equal(t, `say "hi"`, FixEscapeQuotes(`say ""hi""`))
	assert.Equal(t, "plain", FixEscapeQuotes("plain"))
}

func TestUnquoteArg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"checkpoint_1"`, "checkpoint_1"},
		{`  "padded"  `, "padded"},
		{`"door ""A"" opened"`, `door "A" opened`},
		{"bare", "bare"},
		{`"`, `"`},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, UnquoteArg(tt.in))
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		def  bool
		want bool
	}{
		{"true", false, true},
		{`"false"`, true, false},
		{"yes", false, true},
		{"ON", false, true},
		{"no", true, false},
		{"off", true, false},
		{"1", false, true},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBool(tt.in, tt.def))
		})
	}
}
