package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"memlog/config"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "memlogd",
		Short: "Serve in-memory logs and forward them to Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	v.SetEnvPrefix("MEMLOG")
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	flags := cmd.Flags()
	flags.String("config", "", "path to the TOML configuration file")
	flags.String("metrics-bind-address", "", "override [metrics] bind-address")
	flags.String("log-level", "", "override [logging] level")
	flags.String("log-format", "", "override [logging] format")
	for _, name := range []string{"config", "metrics-bind-address", "log-level", "log-format"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

// loadConfig reads the config file named by --config, then applies flag and
// MEMLOG_* environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewConfig()
	if path := v.GetString("config"); path != "" {
		parsed, err := config.ParseConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	if addr := v.GetString("metrics-bind-address"); addr != "" {
		cfg.Metrics.BindAddress = addr
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	if level := v.GetString("log-level"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
		cfg.Logging.Level = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := cfg.Logging.New(os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	d, err := Open(cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Run(ctx)
}
