package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "txscope",
		Short:        "EVM transaction decode and projection engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Process transactions into decoded results",
		RunE:  runProcess,
	}

	processCmd.Flags().String("rpc", "", "chain RPC URL")
	processCmd.Flags().Uint64("chain-id", 0, "chain id (0 means fetch from RPC)")
	processCmd.Flags().String("in", "", "input transactions JSONL")
	processCmd.Flags().String("out", "./data/results.jsonl", "output results JSONL (ignored when pg-dsn is set)")
	processCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	processCmd.Flags().String("abi-url", "https://api.etherscan.io/v2/api", "verified-source ABI registry URL")
	processCmd.Flags().String("abi-api-key", "", "ABI registry API key")
	processCmd.Flags().String("topic0-map", "", "extra topic0->fixed-decoder mappings (comma-separated key=value)")
	processCmd.Flags().Int("max-depth", 8, "max nested multiSend depth")
	processCmd.Flags().Int("concurrency", 4, "concurrent transactions")
	processCmd.Flags().Duration("timeout", 30*time.Second, "per-transaction processing timeout")
	processCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	processCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	processCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(processCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
