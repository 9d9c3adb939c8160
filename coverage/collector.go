package coverage

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type codeKey struct {
	hash     ethcommon.Hash
	creation bool
}

type recordedCode struct {
	code     []byte
	creation bool
	hits     map[uint64]uint64
}

// Collector accumulates executed program counters per distinct bytecode and
// turns them into a source level report on demand.
type Collector struct {
	logger     *zerolog.Logger
	fs         afero.Fs
	adapter    ArtifactAdapter
	reportPath string

	mu    sync.Mutex
	codes map[codeKey]*recordedCode
}

func NewCollector(logger *zerolog.Logger, fs afero.Fs, adapter ArtifactAdapter, reportPath string) *Collector {
	lg := logger.With().Str("component", "coverageCollector").Logger()
	return &Collector{
		logger:     &lg,
		fs:         fs,
		adapter:    adapter,
		reportPath: reportPath,
		codes:      map[codeKey]*recordedCode{},
	}
}

// Record adds hit counts for code. creation marks contract init code, which
// is matched against artifact creation bytecode instead of runtime bytecode.
func (c *Collector) Record(code []byte, creation bool, hits map[uint64]uint64) {
	if len(code) == 0 || len(hits) == 0 {
		return
	}
	key := codeKey{hash: crypto.Keccak256Hash(code), creation: creation}

	c.mu.Lock()
	defer c.mu.Unlock()
	rc, ok := c.codes[key]
	if !ok {
		rc = &recordedCode{
			code:     append([]byte(nil), code...),
			creation: creation,
			hits:     make(map[uint64]uint64, len(hits)),
		}
		c.codes[key] = rc
	}
	for pc, n := range hits {
		rc.hits[pc] += n
	}
}

func (c *Collector) snapshot() []*recordedCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*recordedCode, 0, len(c.codes))
	for _, rc := range c.codes {
		hits := make(map[uint64]uint64, len(rc.hits))
		for pc, n := range rc.hits {
			hits[pc] = n
		}
		out = append(out, &recordedCode{code: rc.code, creation: rc.creation, hits: hits})
	}
	return out
}

// BuildReport maps everything recorded so far onto the contracts the adapter
// knows about.
func (c *Collector) BuildReport(ctx context.Context) (Report, error) {
	contracts, err := c.adapter.CollectContractData(ctx)
	if err != nil {
		return nil, err
	}

	type parsedContract struct {
		data           *ContractData
		creationRanges []SourceRange
		deployedRanges []SourceRange
	}
	parsed := make([]*parsedContract, 0, len(contracts))
	builder := newReportBuilder()
	for _, cd := range contracts {
		pcd := &parsedContract{data: cd}
		if pcd.creationRanges, err = ParseSourceMap(cd.SourceMap); err != nil {
			c.logger.Warn().Err(err).Str("contract", cd.Name).Msg("ignoring invalid creation source map")
		}
		if pcd.deployedRanges, err = ParseSourceMap(cd.DeployedSourceMap); err != nil {
			c.logger.Warn().Err(err).Str("contract", cd.Name).Msg("ignoring invalid deployed source map")
		}
		builder.addStatements(cd, pcd.creationRanges)
		builder.addStatements(cd, pcd.deployedRanges)
		parsed = append(parsed, pcd)
	}

	unmatched := 0
	for _, rc := range c.snapshot() {
		matched := false
		for _, pcd := range parsed {
			if rc.creation && pcd.data.Bytecode.MatchesCreation(rc.code) {
				builder.addHits(pcd.data, pcd.creationRanges, rc.code, rc.hits)
				matched = true
				break
			}
			if !rc.creation && pcd.data.DeployedBytecode.MatchesRuntime(rc.code) {
				builder.addHits(pcd.data, pcd.deployedRanges, rc.code, rc.hits)
				matched = true
				break
			}
		}
		if !matched {
			unmatched++
		}
	}
	if unmatched > 0 {
		c.logger.Debug().Int("count", unmatched).Msg("executed bytecode without a matching artifact")
	}

	return builder.build(), nil
}

// WriteCoverage writes the report for the current accumulated state,
// replacing any previous report.
func (c *Collector) WriteCoverage(ctx context.Context) error {
	report, err := c.BuildReport(ctx)
	if err != nil {
		telemetry.MetricCoverageReportTotal.WithLabelValues("failure").Inc()
		return common.NewErrCoverageReport(c.reportPath, err)
	}

	body, err := common.ReportSonicCfg.Marshal(report)
	if err == nil {
		if dir := filepath.Dir(c.reportPath); dir != "." {
			err = c.fs.MkdirAll(dir, 0o755)
		}
	}
	if err == nil {
		err = afero.WriteFile(c.fs, c.reportPath, body, 0o644)
	}
	if err != nil {
		telemetry.MetricCoverageReportTotal.WithLabelValues("failure").Inc()
		return common.NewErrCoverageReport(c.reportPath, err)
	}

	telemetry.MetricCoverageReportTotal.WithLabelValues("success").Inc()
	c.logger.Info().
		Str("path", c.reportPath).
		Int("files", len(report)).
		Str("size", humanize.Bytes(uint64(len(body)))).
		Msg("wrote coverage report")
	return nil
}
