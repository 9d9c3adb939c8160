// Package client is the Go side of the bridge: a Backend behaves like an
// *ethclient.Client but routes transactions and calls through a solbridge
// process so they get traced for coverage.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	ethereum "github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultGasEstimate is returned by EstimateGas. It is high enough that
// transactions are never rejected at estimation time and always run, so
// failing code paths show up in coverage too.
const DefaultGasEstimate uint64 = 8000000000

const listeningMarker = "server listening"

type Backend struct {
	*ethclient.Client

	bridgeURL  string
	httpClient *http.Client

	cmd           *exec.Cmd
	waitForStdout sync.WaitGroup
}

// NewBackend connects to a node and to a bridge that is already running.
func NewBackend(nodeAddress, bridgeURL string) (*Backend, error) {
	ec, err := ethclient.Dial(nodeAddress)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Client:     ec,
		bridgeURL:  bridgeURL,
		httpClient: &http.Client{},
	}, nil
}

type LaunchOptions struct {
	// Binary is the solbridge executable, "solbridge" from PATH by default.
	Binary       string
	Args         []string
	Env          []string
	NodeAddress  string
	ArtifactsDir string
	ContractsDir string
	Port         int
	ConfigPath   string
	// Stdout receives the bridge output once it is listening, os.Stdout by
	// default.
	Stdout io.Writer
}

// Launch starts a bridge process and returns once it accepts requests. The
// caller must Close the backend to stop the process.
func Launch(ctx context.Context, opts LaunchOptions) (*Backend, error) {
	if opts.Binary == "" {
		opts.Binary = "solbridge"
	}
	if opts.Port == 0 {
		opts.Port = common.DefaultHttpPort
	}
	if opts.NodeAddress == "" {
		opts.NodeAddress = common.DefaultUpstreamEndpoint
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	b, err := NewBackend(opts.NodeAddress, fmt.Sprintf("http://127.0.0.1:%d", opts.Port))
	if err != nil {
		return nil, err
	}

	args := append([]string{}, opts.Args...)
	args = append(args, "--port", strconv.Itoa(opts.Port), "--rpc-url", opts.NodeAddress)
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	args = append(args, opts.ArtifactsDir, opts.ContractsDir)

	cmd := exec.Command(opts.Binary, args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		b.Client.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		b.Client.Close()
		return nil, fmt.Errorf("failed to start %s: %w", opts.Binary, err)
	}
	b.cmd = cmd

	ready := make(chan error, 1)
	buffered := bufio.NewReader(stdout)
	go func() {
		for {
			line, err := buffered.ReadString('\n')
			if line != "" {
				fmt.Fprintln(opts.Stdout, strings.TrimSpace(line))
			}
			if err != nil {
				ready <- fmt.Errorf("bridge exited before listening: %w", err)
				return
			}
			if strings.Contains(line, listeningMarker) {
				ready <- nil
				return
			}
		}
	}()

	select {
	case err = <-ready:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		b.Client.Close()
		return nil, err
	}

	b.waitForStdout.Add(1)
	go func() {
		defer b.waitForStdout.Done()
		_, _ = io.Copy(opts.Stdout, buffered)
	}()
	return b, nil
}

func (b *Backend) call(ctx context.Context, method string, in, out interface{}) error {
	payload, err := common.SonicCfg.Marshal(map[string]interface{}{
		"method": method,
		"data":   in,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.bridgeURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := util.ReadAll(resp.Body, util.DefaultReadChunkSize)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return common.SonicCfg.Unmarshal(body, out)
	case http.StatusInternalServerError:
		return decodeBridgeError(body)
	default:
		return fmt.Errorf("unexpected status from bridge: %q", resp.Status)
	}
}

// decodeBridgeError returns the bridge error as a *common.BaseError when the
// body carries a code, so callers can match it with common.HasErrorCode.
func decodeBridgeError(body []byte) error {
	var be struct {
		Code    common.ErrorCode       `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	}
	if err := common.SonicCfg.Unmarshal(body, &be); err != nil || be.Code == "" {
		return fmt.Errorf("%s", body)
	}
	return &common.BaseError{Code: be.Code, Message: be.Message, Details: be.Details}
}

func (b *Backend) PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error) {
	var nonce uint64
	err := b.call(ctx, "pendingNonceAt", account.Hex(), &nonce)
	return nonce, err
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	var hash string
	return b.call(ctx, "sendTransaction", hexutil.Encode(raw), &hash)
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return DefaultGasEstimate, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	block := "latest"
	if blockNumber != nil {
		block = blockNumber.String()
	}

	converted := map[string]interface{}{
		"data": hexutil.Encode(call.Data),
	}
	if call.From != (ethcommon.Address{}) {
		converted["from"] = call.From.Hex()
	}
	if call.To != nil {
		converted["to"] = call.To.Hex()
	}
	if call.Value != nil {
		converted["value"] = hexutil.EncodeBig(call.Value)
	}

	var result string
	err := b.call(ctx, "call", map[string]interface{}{
		"call":  converted,
		"block": block,
	}, &result)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(result)
}

// WriteCoverage asks the bridge to write its Istanbul report.
func (b *Backend) WriteCoverage(ctx context.Context) error {
	var ok bool
	return b.call(ctx, "writeCoverage", true, &ok)
}

// Close stops the bridge and releases the node connection. A launched bridge
// process is killed when it does not acknowledge the close request.
func (b *Backend) Close() error {
	b.Client.Close()
	var ok bool
	err := b.call(context.Background(), "close", true, &ok)
	if b.cmd == nil {
		return err
	}
	if err != nil {
		_ = b.cmd.Process.Kill()
		b.waitForStdout.Wait()
		_ = b.cmd.Wait()
		return err
	}
	b.waitForStdout.Wait()
	return b.cmd.Wait()
}
