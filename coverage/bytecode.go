package coverage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/erpc/solbridge/util"
)

const (
	opPush1  = 0x60
	opPush32 = 0x7f

	// unlinked library references are 40 hex chars, e.g. __$53aea86b7d70b31448b230b20ae141a537$__
	linkPlaceholderLen = 40
)

// Bytecode is compiled EVM code as found in an artifact. Unlinked library
// references are decoded as zero bytes and ignored when matching.
type Bytecode struct {
	Code         []byte
	placeholders [][2]int
}

func ParseBytecode(object string) (*Bytecode, error) {
	object = util.Strip0x(strings.TrimSpace(object))
	if object == "" {
		return nil, nil
	}

	var placeholders [][2]int
	var normalized strings.Builder
	normalized.Grow(len(object))
	for i := 0; i < len(object); {
		if object[i] == '_' && i+linkPlaceholderLen <= len(object) {
			placeholders = append(placeholders, [2]int{i / 2, (i + linkPlaceholderLen) / 2})
			normalized.WriteString(strings.Repeat("0", linkPlaceholderLen))
			i += linkPlaceholderLen
			continue
		}
		normalized.WriteByte(object[i])
		i++
	}

	code, err := hex.DecodeString(normalized.String())
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	return &Bytecode{Code: code, placeholders: placeholders}, nil
}

// MatchesRuntime reports whether deployed on-chain code is this bytecode,
// ignoring the Solidity metadata trailer and link placeholders.
func (b *Bytecode) MatchesRuntime(code []byte) bool {
	if b == nil || len(code) == 0 {
		return false
	}
	want := stripMetadata(b.Code)
	got := stripMetadata(code)
	if len(want) != len(got) {
		return false
	}
	return b.equalMasked(want, got)
}

// MatchesCreation reports whether a contract-creation input starts with this
// bytecode; constructor arguments follow it.
func (b *Bytecode) MatchesCreation(input []byte) bool {
	if b == nil || len(b.Code) == 0 || len(input) < len(b.Code) {
		return false
	}
	return b.equalMasked(b.Code, input[:len(b.Code)])
}

func (b *Bytecode) equalMasked(want, got []byte) bool {
	start := 0
	for _, ph := range b.placeholders {
		if ph[0] >= len(want) {
			break
		}
		if !bytes.Equal(want[start:ph[0]], got[start:ph[0]]) {
			return false
		}
		start = min(ph[1], len(want))
	}
	return bytes.Equal(want[start:], got[start:])
}

// stripMetadata drops the CBOR metadata Solidity appends to runtime code. Its
// length is stored big-endian in the last two bytes.
func stripMetadata(code []byte) []byte {
	if len(code) < 2 {
		return code
	}
	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	if n+2 > len(code) || n == 0 {
		return code
	}
	// CBOR map header: major type 5.
	if code[len(code)-2-n]>>5 != 5 {
		return code
	}
	return code[:len(code)-2-n]
}

// instructionIndexes maps every program counter that starts an instruction to
// its ordinal, which is what source map entries are indexed by.
func instructionIndexes(code []byte) map[uint64]int {
	indexes := make(map[uint64]int, len(code))
	idx := 0
	for pc := 0; pc < len(code); pc++ {
		indexes[uint64(pc)] = idx
		op := code[pc]
		if op >= opPush1 && op <= opPush32 {
			pc += int(op-opPush1) + 1
		}
		idx++
	}
	return indexes
}
