package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		value    string
		want     bool
	}{
		{
			name:     "exact method",
			patterns: []string{"eth_call"},
			value:    "eth_call",
			want:     true,
		},
		{
			name:     "prefix wildcard",
			patterns: []string{"eth_send*"},
			value:    "eth_sendRawTransaction",
			want:     true,
		},
		{
			name:     "no pattern matches",
			patterns: []string{"eth_call", "eth_send*"},
			value:    "eth_getCode",
			want:     false,
		},
		{
			name:     "empty pattern list",
			patterns: nil,
			value:    "eth_call",
			want:     false,
		},
		{
			name:     "negation excludes a match",
			patterns: []string{"eth_*", "!eth_estimateGas"},
			value:    "eth_estimateGas",
			want:     false,
		},
		{
			name:     "negation order does not matter",
			patterns: []string{"!eth_estimateGas", "eth_*"},
			value:    "eth_estimateGas",
			want:     false,
		},
		{
			name:     "negation leaves other methods",
			patterns: []string{"eth_*", "!eth_estimateGas"},
			value:    "eth_call",
			want:     true,
		},
		{
			name:     "negation alone matches nothing",
			patterns: []string{"!eth_call"},
			value:    "eth_sendRawTransaction",
			want:     false,
		},
		{
			name:     "single character wildcard",
			patterns: []string{"debug_trace?all"},
			value:    "debug_traceCall",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAny(tt.patterns, tt.value))
		})
	}
}
