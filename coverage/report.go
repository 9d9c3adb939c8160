package coverage

import (
	"sort"
	"strconv"
)

type Range struct {
	Start Location `json:"start"`
	End   Location `json:"end"`
}

// FileCoverage is the Istanbul coverage object of one source file. Only
// statements are computed; functions and branches are emitted empty so
// Istanbul tooling accepts the file.
type FileCoverage struct {
	Path         string                 `json:"path"`
	StatementMap map[string]Range       `json:"statementMap"`
	S            map[string]uint64      `json:"s"`
	FnMap        map[string]interface{} `json:"fnMap"`
	F            map[string]uint64      `json:"f"`
	BranchMap    map[string]interface{} `json:"branchMap"`
	B            map[string][]uint64    `json:"b"`
}

// Report is keyed by source file path.
type Report map[string]*FileCoverage

type statementKey struct {
	offset int
	length int
}

type fileStatements struct {
	source *SourceFile
	lines  lineIndex
	counts map[statementKey]uint64
}

type reportBuilder struct {
	files map[string]*fileStatements
}

func newReportBuilder() *reportBuilder {
	return &reportBuilder{files: map[string]*fileStatements{}}
}

func (b *reportBuilder) file(src *SourceFile) *fileStatements {
	fs, ok := b.files[src.Path]
	if !ok {
		fs = &fileStatements{
			source: src,
			lines:  newLineIndex(src.Content),
			counts: map[statementKey]uint64{},
		}
		b.files[src.Path] = fs
	}
	return fs
}

// statementOf resolves a source map entry to the file it belongs to, or nil
// for compiler generated code and unknown sources.
func (b *reportBuilder) statementOf(cd *ContractData, r SourceRange) (*fileStatements, statementKey) {
	if r.FileIndex < 0 || r.Length <= 0 {
		return nil, statementKey{}
	}
	src, ok := cd.Sources[r.FileIndex]
	if !ok || r.Offset+r.Length > len(src.Content) {
		return nil, statementKey{}
	}
	return b.file(src), statementKey{offset: r.Offset, length: r.Length}
}

// addStatements registers every statement of a source map with a zero count
// so code that never ran shows up as uncovered.
func (b *reportBuilder) addStatements(cd *ContractData, ranges []SourceRange) {
	for _, r := range ranges {
		fs, key := b.statementOf(cd, r)
		if fs == nil {
			continue
		}
		if _, ok := fs.counts[key]; !ok {
			fs.counts[key] = 0
		}
	}
}

// addHits attributes pc hit counts of code to statements. A statement spans
// several instructions, its count is the highest count among them.
func (b *reportBuilder) addHits(cd *ContractData, ranges []SourceRange, code []byte, hits map[uint64]uint64) {
	indexes := instructionIndexes(code)
	perStatement := map[*fileStatements]map[statementKey]uint64{}
	for pc, count := range hits {
		idx, ok := indexes[pc]
		if !ok || idx >= len(ranges) {
			continue
		}
		fs, key := b.statementOf(cd, ranges[idx])
		if fs == nil {
			continue
		}
		m, ok := perStatement[fs]
		if !ok {
			m = map[statementKey]uint64{}
			perStatement[fs] = m
		}
		if count > m[key] {
			m[key] = count
		}
	}
	for fs, m := range perStatement {
		for key, count := range m {
			fs.counts[key] += count
		}
	}
}

func (b *reportBuilder) build() Report {
	report := make(Report, len(b.files))
	for path, fs := range b.files {
		keys := make([]statementKey, 0, len(fs.counts))
		for k := range fs.counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].offset != keys[j].offset {
				return keys[i].offset < keys[j].offset
			}
			return keys[i].length < keys[j].length
		})

		fc := &FileCoverage{
			Path:         path,
			StatementMap: make(map[string]Range, len(keys)),
			S:            make(map[string]uint64, len(keys)),
			FnMap:        map[string]interface{}{},
			F:            map[string]uint64{},
			BranchMap:    map[string]interface{}{},
			B:            map[string][]uint64{},
		}
		for i, k := range keys {
			id := strconv.Itoa(i)
			fc.StatementMap[id] = Range{
				Start: fs.lines.location(k.offset),
				End:   fs.lines.location(k.offset + k.length),
			}
			fc.S[id] = fs.counts[k]
		}
		report[path] = fc
	}
	return report
}
