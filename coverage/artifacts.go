package coverage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/erpc/solbridge/common"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// SourceFile is a Solidity source referenced by a compiler artifact.
type SourceFile struct {
	Path    string
	Content string
}

// ContractData is everything the report needs to know about one compiled
// contract.
type ContractData struct {
	Name              string
	Bytecode          *Bytecode
	SourceMap         string
	DeployedBytecode  *Bytecode
	DeployedSourceMap string
	// keyed by the compiler's source index
	Sources map[int]*SourceFile
}

// ArtifactAdapter provides the compiled contracts coverage is mapped to.
type ArtifactAdapter interface {
	CollectContractData(ctx context.Context) ([]*ContractData, error)
}

type SolCompilerArtifactAdapter struct {
	logger       *zerolog.Logger
	fs           afero.Fs
	artifactsDir string
	contractsDir string
}

var _ ArtifactAdapter = (*SolCompilerArtifactAdapter)(nil)

func NewSolCompilerArtifactAdapter(logger *zerolog.Logger, fs afero.Fs, artifactsDir, contractsDir string) *SolCompilerArtifactAdapter {
	lg := logger.With().Str("component", "artifacts").Str("artifactsDir", artifactsDir).Logger()
	return &SolCompilerArtifactAdapter{
		logger:       &lg,
		fs:           fs,
		artifactsDir: artifactsDir,
		contractsDir: contractsDir,
	}
}

type solCompilerArtifact struct {
	SchemaVersion  string `json:"schemaVersion"`
	ContractName   string `json:"contractName"`
	CompilerOutput struct {
		Evm struct {
			Bytecode         evmBytecode `json:"bytecode"`
			DeployedBytecode evmBytecode `json:"deployedBytecode"`
		} `json:"evm"`
	} `json:"compilerOutput"`
	Sources     map[string]solCompilerSource `json:"sources"`
	SourceCodes map[string]string            `json:"sourceCodes"`
}

type evmBytecode struct {
	Object    string `json:"object"`
	SourceMap string `json:"sourceMap"`
}

type solCompilerSource struct {
	Id int `json:"id"`
}

// CollectContractData reads every *.json file under the artifacts directory.
// Files that are not contract artifacts are skipped.
// An empty artifacts directory yields no contracts.
func (a *SolCompilerArtifactAdapter) CollectContractData(ctx context.Context) ([]*ContractData, error) {
	if a.artifactsDir == "" {
		return []*ContractData{}, nil
	}

	var paths []string
	err := afero.Walk(a.fs, a.artifactsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, common.NewErrArtifactLoad(a.artifactsDir, err)
	}
	sort.Strings(paths)

	contracts := make([]*ContractData, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cd, err := a.loadArtifact(path)
		if err != nil {
			return nil, err
		}
		if cd == nil {
			a.logger.Debug().Str("path", path).Msg("skipping file without compiler output")
			continue
		}
		contracts = append(contracts, cd)
	}

	a.logger.Debug().Int("contracts", len(contracts)).Msg("loaded compiler artifacts")
	return contracts, nil
}

func (a *SolCompilerArtifactAdapter) loadArtifact(path string) (*ContractData, error) {
	raw, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, common.NewErrArtifactLoad(path, err)
	}
	var artifact solCompilerArtifact
	if err := common.SonicCfg.Unmarshal(raw, &artifact); err != nil {
		return nil, common.NewErrArtifactLoad(path, err)
	}
	evm := artifact.CompilerOutput.Evm
	if artifact.ContractName == "" || evm.DeployedBytecode.Object == "" {
		return nil, nil
	}

	cd := &ContractData{
		Name:              artifact.ContractName,
		SourceMap:         evm.Bytecode.SourceMap,
		DeployedSourceMap: evm.DeployedBytecode.SourceMap,
		Sources:           make(map[int]*SourceFile, len(artifact.Sources)),
	}
	if cd.Bytecode, err = ParseBytecode(evm.Bytecode.Object); err != nil {
		return nil, common.NewErrArtifactLoad(path, err)
	}
	if cd.DeployedBytecode, err = ParseBytecode(evm.DeployedBytecode.Object); err != nil {
		return nil, common.NewErrArtifactLoad(path, err)
	}

	for srcPath, src := range artifact.Sources {
		file, err := a.loadSource(srcPath, artifact.SourceCodes)
		if err != nil {
			a.logger.Warn().Err(err).Str("contract", cd.Name).Str("source", srcPath).Msg("source file unavailable, its statements will not be reported")
			continue
		}
		cd.Sources[src.Id] = file
	}
	return cd, nil
}

func (a *SolCompilerArtifactAdapter) loadSource(srcPath string, embedded map[string]string) (*SourceFile, error) {
	fullPath := srcPath
	if !filepath.IsAbs(srcPath) {
		fullPath = filepath.Join(a.contractsDir, srcPath)
	}
	if content, ok := embedded[srcPath]; ok {
		return &SourceFile{Path: fullPath, Content: content}, nil
	}
	content, err := afero.ReadFile(a.fs, fullPath)
	if err != nil {
		return nil, err
	}
	return &SourceFile{Path: fullPath, Content: string(content)}, nil
}
