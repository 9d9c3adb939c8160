package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	ethereum "github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	util.ConfigureTestLogger()
}

type envelope struct {
	Method string      `json:"method"`
	Data   interface{} `json:"data"`
}

type fakeBridge struct {
	mu       sync.Mutex
	received []envelope
	replies  map[string]string
	status   map[string]int
}

func (f *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var env envelope
	if err := common.SonicCfg.Unmarshal(body, &env); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"ErrInvalidRequest","message":"bad envelope"}`))
		return
	}
	f.mu.Lock()
	f.received = append(f.received, env)
	status, reply := http.StatusOK, f.replies[env.Method]
	if s, ok := f.status[env.Method]; ok {
		status = s
	}
	f.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}

func (f *fakeBridge) last() envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

func newTestBackend(t *testing.T) (*Backend, *fakeBridge) {
	t.Helper()
	fb := &fakeBridge{
		replies: map[string]string{
			"pendingNonceAt":  `42`,
			"sendTransaction": `"0xabc"`,
			"call":            `"0x0102"`,
			"writeCoverage":   `true`,
			"close":           `true`,
		},
		status: map[string]int{},
	}
	ts := httptest.NewServer(fb)
	t.Cleanup(ts.Close)

	b, err := NewBackend("http://127.0.0.1:1", ts.URL)
	require.NoError(t, err)
	return b, fb
}

func TestBackend_PendingNonceAt(t *testing.T) {
	b, fb := newTestBackend(t)
	account := ethcommon.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")

	nonce, err := b.PendingNonceAt(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), nonce)
	assert.Equal(t, envelope{Method: "pendingNonceAt", Data: account.Hex()}, fb.last())
}

func TestBackend_SendTransaction(t *testing.T) {
	b, fb := newTestBackend(t)
	to := ethcommon.HexToAddress("0x1000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(5)})

	require.NoError(t, b.SendTransaction(context.Background(), tx))

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, envelope{Method: "sendTransaction", Data: hexutil.Encode(raw)}, fb.last())
}

func TestBackend_CallContract(t *testing.T) {
	b, fb := newTestBackend(t)
	to := ethcommon.HexToAddress("0x1000000000000000000000000000000000000001")
	msg := ethereum.CallMsg{To: &to, Data: []byte{0x06, 0xfd}, Value: big.NewInt(16)}

	out, err := b.CallContract(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)
	assert.Equal(t, map[string]interface{}{
		"call": map[string]interface{}{
			"to":    to.Hex(),
			"data":  "0x06fd",
			"value": "0x10",
		},
		"block": "latest",
	}, fb.last().Data)

	_, err = b.CallContract(context.Background(), msg, big.NewInt(1234))
	require.NoError(t, err)
	assert.Equal(t, "1234", fb.last().Data.(map[string]interface{})["block"])
}

func TestBackend_EstimateGasIsFixed(t *testing.T) {
	b, fb := newTestBackend(t)
	gas, err := b.EstimateGas(context.Background(), ethereum.CallMsg{})
	require.NoError(t, err)
	assert.Equal(t, DefaultGasEstimate, gas)
	assert.Empty(t, fb.received)
}

func TestBackend_Errors(t *testing.T) {
	b, fb := newTestBackend(t)

	fb.status["writeCoverage"] = http.StatusInternalServerError
	fb.replies["writeCoverage"] = `{"code":"ErrCoverageReport","message":"failed to write coverage report","details":{"path":"coverage/coverage.json"}}`
	err := b.WriteCoverage(context.Background())
	assert.True(t, common.HasErrorCode(err, common.ErrCodeCoverageReport))

	fb.replies["writeCoverage"] = `not json`
	err = b.WriteCoverage(context.Background())
	assert.EqualError(t, err, "not json")

	fb.status["writeCoverage"] = http.StatusBadGateway
	err = b.WriteCoverage(context.Background())
	assert.ErrorContains(t, err, "unexpected status from bridge")
}

func TestBackend_CloseWithoutProcess(t *testing.T) {
	b, fb := newTestBackend(t)
	require.NoError(t, b.Close())
	assert.Equal(t, "close", fb.last().Method)
}

// TestHelperProcess stands in for the bridge binary when re-executed by
// TestLaunch.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SOLBRIDGE_HELPER_PROCESS") != "1" {
		return
	}
	port := ""
	for i, arg := range os.Args {
		if arg == "--port" && i+1 < len(os.Args) {
			port = os.Args[i+1]
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		os.Exit(2)
	}
	fmt.Println("booting")
	fmt.Printf("solbridge server listening on port %s\n", port)

	srv := &http.Server{}
	srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("true"))
		if bytes.Contains(body, []byte(`"close"`)) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				fmt.Println("stopped")
				os.Exit(0)
			}()
		}
	})
	_ = srv.Serve(ln)
	os.Exit(0)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestLaunch(t *testing.T) {
	port := freePort(t)
	out := &syncBuffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b, err := Launch(ctx, LaunchOptions{
		Binary:       os.Args[0],
		Args:         []string{"-test.run=TestHelperProcess", "--"},
		Env:          []string{"SOLBRIDGE_HELPER_PROCESS=1"},
		ArtifactsDir: "artifacts",
		ContractsDir: "contracts",
		Port:         port,
		Stdout:       out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "server listening on port "+strconv.Itoa(port))

	require.NoError(t, b.WriteCoverage(context.Background()))
	require.NoError(t, b.Close())
	assert.Contains(t, out.String(), "stopped")
}

func TestLaunch_ExitsBeforeListening(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Launch(ctx, LaunchOptions{
		Binary: os.Args[0],
		Args:   []string{"-test.run=TestNothingMatches", "--"},
		Port:   freePort(t),
		Stdout: io.Discard,
	})
	assert.ErrorContains(t, err, "bridge exited before listening")
}
