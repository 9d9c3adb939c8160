package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceMap(t *testing.T) {
	t.Run("InheritsEmptyFields", func(t *testing.T) {
		ranges, err := ParseSourceMap("1:2:1;:9;2:1:2;;4::-1:o")
		require.NoError(t, err)
		assert.Equal(t, []SourceRange{
			{Offset: 1, Length: 2, FileIndex: 1, Jump: '-'},
			{Offset: 1, Length: 9, FileIndex: 1, Jump: '-'},
			{Offset: 2, Length: 1, FileIndex: 2, Jump: '-'},
			{Offset: 2, Length: 1, FileIndex: 2, Jump: '-'},
			{Offset: 4, Length: 1, FileIndex: -1, Jump: 'o'},
		}, ranges)
	})

	t.Run("ModifierDepthIgnored", func(t *testing.T) {
		ranges, err := ParseSourceMap("0:10:0:i:1")
		require.NoError(t, err)
		assert.Equal(t, []SourceRange{{Offset: 0, Length: 10, FileIndex: 0, Jump: 'i'}}, ranges)
	})

	t.Run("Empty", func(t *testing.T) {
		ranges, err := ParseSourceMap("")
		require.NoError(t, err)
		assert.Empty(t, ranges)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseSourceMap("0:10:0;x:1")
		assert.ErrorContains(t, err, "entry 1")
	})
}

func TestLineIndex(t *testing.T) {
	li := newLineIndex(counterSource)
	assert.Equal(t, Location{Line: 1, Column: 0}, li.location(0))
	assert.Equal(t, Location{Line: 2, Column: 2}, li.location(15))
	assert.Equal(t, Location{Line: 3, Column: 8}, li.location(38))
	assert.Equal(t, Location{Line: 3, Column: 13}, li.location(43))
}

func TestInstructionIndexes(t *testing.T) {
	// PUSH2 0x0102, PUSH1 0x03, ADD, PUSH32 <32 bytes>, STOP
	code := append([]byte{0x61, 0x01, 0x02, 0x60, 0x03, 0x01, 0x7f}, make([]byte, 32)...)
	code = append(code, 0x00)

	idx := instructionIndexes(code)
	assert.Equal(t, 0, idx[0])
	assert.Equal(t, 1, idx[3])
	assert.Equal(t, 2, idx[5])
	assert.Equal(t, 3, idx[6])
	assert.Equal(t, 4, idx[39])
	_, ok := idx[1]
	assert.False(t, ok, "push data is not an instruction")
	_, ok = idx[7]
	assert.False(t, ok, "push data is not an instruction")
}
