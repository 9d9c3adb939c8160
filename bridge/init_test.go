package bridge

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	"github.com/h2non/gock"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func safeReadBody(req *http.Request) string {
	if req.Body == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(body)
	return buf.String()
}

func mockNode(method string, result string) {
	gock.New("http://rpc1.localhost").
		Post("").
		Filter(func(request *http.Request) bool {
			return strings.Contains(safeReadBody(request), `"method":"`+method+`"`)
		}).
		Reply(200).
		JSON([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
}

func newTestConfig(coverageEnabled bool) *common.Config {
	return &common.Config{
		LogLevel: "debug",
		Server:   &common.ServerConfig{HttpHost: "127.0.0.1", HttpPort: 0},
		Upstream: &common.UpstreamConfig{Endpoint: "http://rpc1.localhost"},
		Coverage: &common.CoverageConfig{
			Enabled:            util.BoolPtr(coverageEnabled),
			ArtifactsDir:       "/project/artifacts",
			ContractsDir:       "/project/contracts",
			DefaultFromAddress: common.DefaultFromAddress,
			ReportPath:         "/project/coverage/coverage.json",
			TraceMethods:       common.DefaultTraceMethods,
		},
	}
}

func TestInit_ForwardsToNode(t *testing.T) {
	defer gock.Off()
	mockNode("eth_getTransactionCount", `"0x7"`)

	b, err := Init(context.Background(), &log.Logger, afero.NewMemMapFs(), newTestConfig(false))
	require.NoError(t, err)
	assert.Equal(t, NoopCoverageWriter, b.Coverage)

	client := &http.Client{Transport: &http.Transport{}}
	status, body, err := post(client, b.Lifecycle.Addr(), `{"method":"pendingNonceAt","data":"0x5409ed021d9299bf6814279a6a1411a7e866a631"}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "7", body)

	status, body, err = post(client, b.Lifecycle.Addr(), `{"method":"writeCoverage","data":true}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "true", body)

	status, body, err = post(client, b.Lifecycle.Addr(), `{"method":"close","data":true}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "true", body)
	waitDone(t, b.Lifecycle)
	assert.True(t, gock.IsDone())
}

const (
	initTestSource   = "contract A {\n  function f() {\n    x = 1 + 2;\n  }\n}\n"
	initTestArtifact = `{
  "contractName": "A",
  "compilerOutput": {
    "evm": {
      "bytecode": {"object": "0x6001600201", "sourceMap": "0:51:0:-"},
      "deployedBytecode": {"object": "0x600160020100a1000002", "sourceMap": "0:51:0:-;38:5;;34:10"}
    }
  },
  "sources": {"A.sol": {"id": 0}}
}`
)

func TestInit_CoverageRoundTrip(t *testing.T) {
	defer gock.Off()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/artifacts/A.json", []byte(initTestArtifact), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/project/contracts/A.sol", []byte(initTestSource), 0o644))

	mockNode("eth_call", `"0x03"`)
	mockNode("debug_traceCall", `{"failed":false,"gas":3,"returnValue":"","structLogs":[`+
		`{"pc":0,"op":"PUSH1","depth":1},{"pc":2,"op":"PUSH1","depth":1},{"pc":4,"op":"ADD","depth":1}]}`)
	mockNode("eth_getCode", `"0x600160020100a1000002"`)

	b, err := Init(context.Background(), &log.Logger, fs, newTestConfig(true))
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{}}

	status, body, err := post(client, b.Lifecycle.Addr(), `{"method":"call","data":{"call":{"to":"0x1000000000000000000000000000000000000001","data":"0x"},"block":"latest"}}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, `"0x03"`, body)

	for i := 0; i < 2; i++ {
		status, body, err = post(client, b.Lifecycle.Addr(), `{"method":"writeCoverage","data":true}`)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status, body)
	}

	raw, err := afero.ReadFile(fs, "/project/coverage/coverage.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"/project/contracts/A.sol"`)
	assert.Contains(t, string(raw), `"s":{"0":1,"1":0,"2":1}`)
	assert.True(t, gock.IsDone())

	require.NoError(t, b.Lifecycle.Stop(context.Background()))
}

func TestInit_InvalidUpstream(t *testing.T) {
	cfg := newTestConfig(false)
	cfg.Upstream.Failsafe = &common.FailsafeConfig{Retry: &common.RetryPolicyConfig{MaxAttempts: -1}}

	_, err := Init(context.Background(), &log.Logger, afero.NewMemMapFs(), cfg)
	assert.Error(t, err)
}
