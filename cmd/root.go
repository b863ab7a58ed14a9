package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcastellin/netgossip/internal/bootstrap"
	"github.com/mcastellin/netgossip/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const usage = `A peer-to-peer gossip node that disseminates a small payload across a
membership of nodes and tracks which ones are still alive.

EXAMPLES:
  Start a seed node listening on port 9000:
    <program> --port 9000 --period 5

  Start a second node that joins through the seed:
    <program> --port 9001 --period 5 --connect 127.0.0.1:9000`

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   ".",
	Short: "A peer-to-peer gossip node",
	Long:  usage,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func addFlags(flags *pflag.FlagSet) {
	flags.String("connect", "", "address of a seed peer to join, host:port")
	flags.Uint8("period", 0, "payload broadcast period, in seconds (required, 1-255)")
	flags.Uint16("port", 0, "TCP port this node listens on")
	flags.Uint16("metrics-port", 0, "port for the /healthz and /metrics control-plane server, 0 disables it")

	for _, binding := range []struct{ key, flag string }{
		{"connect", "connect"},
		{"period", "period"},
		{"port", "port"},
		{"metrics_port", "metrics-port"},
	} {
		if err := v.BindPFlag(binding.key, flags.Lookup(binding.flag)); err != nil {
			panic(fmt.Errorf("fatal binding flag %q: %w", binding.flag, err))
		}
		// AutomaticEnv only looks up the upper-cased name; bind the
		// lowercase name explicitly as well.
		if err := v.BindEnv(binding.key, binding.key); err != nil {
			panic(fmt.Errorf("fatal binding env %q: %w", binding.key, err))
		}
	}

	v.SetDefault("log_level", "info")
	if err := v.BindEnv("log_level", "log_level"); err != nil {
		panic(fmt.Errorf("fatal binding env %q: %w", "log_level", err))
	}
	v.AutomaticEnv()
}

func init() {
	addFlags(rootCmd.Flags())
}

// Execute runs the root command, exiting the process with a non-zero status
// on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runNode() error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zapCfg.Level = level
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("application starting: netgossip",
		zap.Uint16("port", cfg.Port),
		zap.String("connect", cfg.Connect),
		zap.Uint8("period", cfg.Period))

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return bootstrap.Run(ctx, cfg, logger)
}
