package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodesSurviveTruncation(t *testing.T) {
	codes := []int{ExitCodeBridgeStartFailed, ExitCodeHttpServerFailed}
	seen := map[int]bool{}
	for _, code := range codes {
		assert.Greater(t, code, 0)
		assert.Equal(t, code, code&0xff, "exit code %d does not fit in a process exit status", code)
		assert.False(t, seen[code], "exit code %d reused", code)
		seen[code] = true
	}
}
