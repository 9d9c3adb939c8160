package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/erpc/solbridge/bridge"
	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cmd := newCommand(afero.NewOsFs(), os.Stdout)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("failed to start solbridge")
		util.OsExit(util.ExitCodeBridgeStartFailed)
	}
}

func newCommand(fs afero.Fs, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "solbridge",
		Usage:     "serve node operations and coverage collection over a local http bridge",
		ArgsUsage: "<artifactsDir> <contractsDir>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("SOLBRIDGE_CONFIG"),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "port of the bridge endpoint",
				Value: common.DefaultHttpPort,
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "json-rpc endpoint of the ethereum node",
				Value:   common.DefaultUpstreamEndpoint,
				Sources: cli.EnvVars("SOLBRIDGE_RPC_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warn or error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := resolveConfig(fs, cmd)
			if err != nil {
				return err
			}
			return run(ctx, fs, cfg, stdout)
		},
	}
}

// resolveConfig loads the config file when one is given and applies the
// command line on top of it.
func resolveConfig(fs afero.Fs, cmd *cli.Command) (*common.Config, error) {
	cfg := common.NewDefaultConfig()
	if path := cmd.String("config"); path != "" {
		if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file '%s' does not exist", path)
		}
		loaded, err := common.LoadConfig(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		cfg = loaded
	}

	if cmd.IsSet("port") {
		cfg.Server.HttpPort = int(cmd.Int("port"))
	}
	if cmd.IsSet("rpc-url") {
		cfg.Upstream.Endpoint = cmd.String("rpc-url")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if dir := cmd.Args().Get(0); dir != "" {
		cfg.Coverage.ArtifactsDir = dir
	}
	if dir := cmd.Args().Get(1); dir != "" {
		cfg.Coverage.ContractsDir = dir
	}
	if cmd.Args().Len() > 2 {
		return nil, fmt.Errorf("expected at most 2 arguments, got %d", cmd.Args().Len())
	}

	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, fs afero.Fs, cfg *common.Config, stdout io.Writer) error {
	logger := log.Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Msgf("invalid log level '%s', defaulting to 'info': %s", cfg.LogLevel, err)
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)
	logger.Info().Object("config", cfg).Msg("starting solbridge")

	b, err := bridge.Init(ctx, &logger, fs, cfg)
	if err != nil {
		return err
	}

	port := cfg.Server.HttpPort
	if tcp, ok := b.Lifecycle.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	fmt.Fprintf(stdout, "solbridge server listening on port %d\n", port)

	<-b.Lifecycle.Done()
	fmt.Fprintln(stdout, "solbridge server stopped")
	return nil
}
