package coverage

import (
	"testing"

	"github.com/erpc/solbridge/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func init() {
	util.ConfigureTestLogger()
}

// counterSource offsets: line 3 starts at 30, "x = 1 + 2;" is at 34 and
// "1 + 2" at 38.
const counterSource = "contract A {\n  function f() {\n    x = 1 + 2;\n  }\n}\n"

// PUSH1 1, PUSH1 2, ADD, STOP followed by a two byte CBOR metadata trailer.
const (
	counterRuntime        = "600160020100a1000002"
	counterRuntimeOnChain = "0x600160020100a1ff0002"
	counterRuntimeMap     = "0:51:0:-;38:5;;34:10"
	counterCreation       = "6001600201"
	counterCreationMap    = "0:51:0:-"
)

const counterArtifact = `{
  "schemaVersion": "2.0.0",
  "contractName": "A",
  "compilerOutput": {
    "evm": {
      "bytecode": {"object": "0x` + counterCreation + `", "sourceMap": "` + counterCreationMap + `"},
      "deployedBytecode": {"object": "0x` + counterRuntime + `", "sourceMap": "` + counterRuntimeMap + `"}
    }
  },
  "sources": {"A.sol": {"id": 0}}
}`

func newCounterFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/artifacts/A.json", []byte(counterArtifact), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/project/artifacts/cache/solc.json", []byte(`{"compilers":[]}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/project/contracts/A.sol", []byte(counterSource), 0o644))
	return fs
}

func newCounterAdapter(fs afero.Fs) *SolCompilerArtifactAdapter {
	return NewSolCompilerArtifactAdapter(&log.Logger, fs, "/project/artifacts", "/project/contracts")
}
