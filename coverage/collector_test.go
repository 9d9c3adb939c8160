package coverage

import (
	"context"
	"errors"
	"testing"

	"github.com/erpc/solbridge/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterSourcePath = "/project/contracts/A.sol"

func readReport(t *testing.T, fs afero.Fs, path string) Report {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	report := Report{}
	require.NoError(t, common.SonicCfg.Unmarshal(raw, &report))
	return report
}

func TestCollector_WriteCoverage(t *testing.T) {
	fs := newCounterFs(t)
	collector := NewCollector(&log.Logger, fs, newCounterAdapter(fs), "coverage/coverage.json")

	// every instruction but the final STOP
	collector.Record(hexutil.MustDecode(counterRuntimeOnChain), false, map[uint64]uint64{0: 1, 2: 1, 4: 1})
	require.NoError(t, collector.WriteCoverage(context.Background()))

	report := readReport(t, fs, "coverage/coverage.json")
	require.Contains(t, report, counterSourcePath)
	fc := report[counterSourcePath]
	assert.Equal(t, counterSourcePath, fc.Path)
	assert.Equal(t, map[string]uint64{"0": 1, "1": 0, "2": 1}, fc.S)
	assert.Equal(t, Range{Start: Location{Line: 3, Column: 8}, End: Location{Line: 3, Column: 13}}, fc.StatementMap["2"])
	assert.Equal(t, Range{Start: Location{Line: 3, Column: 4}, End: Location{Line: 3, Column: 14}}, fc.StatementMap["1"])
	assert.Empty(t, fc.FnMap)
	assert.Empty(t, fc.B)

	collector.Record(hexutil.MustDecode(counterRuntimeOnChain), false, map[uint64]uint64{0: 1, 5: 1})
	require.NoError(t, collector.WriteCoverage(context.Background()), "repeated writes succeed")

	report = readReport(t, fs, "coverage/coverage.json")
	assert.Equal(t, map[string]uint64{"0": 2, "1": 1, "2": 1}, report[counterSourcePath].S)
}

func TestCollector_NothingRecorded(t *testing.T) {
	fs := newCounterFs(t)
	collector := NewCollector(&log.Logger, fs, newCounterAdapter(fs), "/out/coverage.json")

	require.NoError(t, collector.WriteCoverage(context.Background()))
	require.NoError(t, collector.WriteCoverage(context.Background()))

	report := readReport(t, fs, "/out/coverage.json")
	assert.Equal(t, map[string]uint64{"0": 0, "1": 0, "2": 0}, report[counterSourcePath].S)
}

func TestCollector_CreationCode(t *testing.T) {
	fs := newCounterFs(t)
	collector := NewCollector(&log.Logger, fs, newCounterAdapter(fs), "/out/coverage.json")

	initCode := hexutil.MustDecode("0x" + counterCreation + "00000000")
	collector.Record(initCode, true, map[uint64]uint64{0: 1, 2: 1})

	report, err := collector.BuildReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report[counterSourcePath].S["0"])
	assert.Equal(t, uint64(0), report[counterSourcePath].S["2"])
}

func TestCollector_UnknownCodeIgnored(t *testing.T) {
	fs := newCounterFs(t)
	collector := NewCollector(&log.Logger, fs, newCounterAdapter(fs), "/out/coverage.json")

	collector.Record(hexutil.MustDecode("0x6005600601"), false, map[uint64]uint64{0: 4})
	collector.Record(nil, false, map[uint64]uint64{0: 1})

	report, err := collector.BuildReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"0": 0, "1": 0, "2": 0}, report[counterSourcePath].S)
}

type failingAdapter struct{}

func (failingAdapter) CollectContractData(ctx context.Context) ([]*ContractData, error) {
	return nil, errors.New("disk on fire")
}

func TestCollector_AdapterFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	collector := NewCollector(&log.Logger, fs, failingAdapter{}, "/out/coverage.json")

	err := collector.WriteCoverage(context.Background())
	assert.True(t, common.HasErrorCode(err, common.ErrCodeCoverageReport))
	assert.ErrorContains(t, err, "disk on fire")

	exists, _ := afero.Exists(fs, "/out/coverage.json")
	assert.False(t, exists)
}
