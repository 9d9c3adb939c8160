package coverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SourceRange is one decompressed source map entry: a byte range in the
// source file identified by FileIndex. FileIndex is -1 for compiler
// generated code.
type SourceRange struct {
	Offset    int
	Length    int
	FileIndex int
	Jump      byte
}

// ParseSourceMap decompresses a solc source map ("s:l:f:j;..."), where empty
// fields repeat the value of the previous entry.
func ParseSourceMap(sourceMap string) ([]SourceRange, error) {
	if sourceMap == "" {
		return nil, nil
	}
	entries := strings.Split(sourceMap, ";")
	ranges := make([]SourceRange, 0, len(entries))
	prev := SourceRange{FileIndex: -1, Jump: '-'}
	for i, entry := range entries {
		cur := prev
		fields := strings.Split(entry, ":")
		for f, field := range fields {
			if field == "" {
				continue
			}
			if f == 3 {
				cur.Jump = field[0]
				continue
			}
			if f > 3 {
				// modifier depth, not needed for statement coverage
				continue
			}
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("source map entry %d: invalid field %q", i, field)
			}
			switch f {
			case 0:
				cur.Offset = v
			case 1:
				cur.Length = v
			case 2:
				cur.FileIndex = v
			}
		}
		ranges = append(ranges, cur)
		prev = cur
	}
	return ranges, nil
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// lineIndex holds the byte offset of every line start in a source file.
type lineIndex []int

func newLineIndex(source string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// location converts a byte offset into a 1-based line and 0-based column.
func (li lineIndex) location(offset int) Location {
	line := sort.Search(len(li), func(i int) bool { return li[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return Location{Line: line + 1, Column: offset - li[line]}
}
