package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCasID_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		input CasID
		want  bool
	}{
		{
			name:  "Valid CasID (64 chars)",
			input: CasID(strings.Repeat("a", 64)),
			want:  true,
		},
		{
			name:  "Too Short",
			input: CasID("abc"),
			want:  false,
		},
		{
			name:  "Empty",
			input: CasID(""),
			want:  false,
		},
		{
			name:  "Too Long",
			input: CasID(strings.Repeat("a", 65)),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input.IsValid())
		})
	}
}

func TestCasID_String(t *testing.T) {
	s := "aabbccddeeff"
	c := CasID(s)
	assert.Equal(t, s, c.String())
	assert.Equal(t, "aabbccdd", c.Short())
	assert.False(t, c.IsZero())

	var zero CasID
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.Short())
}
