package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txscope/internal/abistore"
	"txscope/internal/chain"
	"txscope/internal/config"
	"txscope/internal/decode"
	"txscope/internal/model"
	"txscope/internal/processor"
	"txscope/internal/retry"
	"txscope/internal/safe"
	"txscope/internal/storage"
	"txscope/internal/storage/postgres"
)

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID := cfg.ChainID
	if chainID == 0 {
		id, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		if !id.IsUint64() {
			return fmt.Errorf("chain id does not fit in uint64: %s", id)
		}
		chainID = id.Uint64()
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		pgStore, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		store = storage.NewJsonlStorage(cfg.Out)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBackoff,
		Jitter:      0.2,
	}

	abiSource := abistore.NewEtherscanSource(cfg.AbiURL, cfg.AbiAPIKey, nil)
	abis := abistore.NewStore(abistore.NewMemoryCache(), abiSource, chainClient, policy, logger)

	logDecoder, err := decode.NewLogDecoder(decode.LogDecoderConfig{ExtraFixed: cfg.Topic0Map}, logger)
	if err != nil {
		return err
	}
	callDecoder := decode.NewCallDecoder(abis, logger)
	batchDecoder := safe.NewBatchDecoder(callDecoder, cfg.MaxDepth, logger)

	proc := processor.New(processor.Config{
		Timeout:     cfg.Timeout,
		Concurrency: cfg.Concurrency,
		Retry:       policy,
	}, chainClient, abis, logDecoder, callDecoder, batchDecoder, store, logger)

	txs, err := readTransactions(cfg.In, chainID)
	if err != nil {
		return err
	}

	logger.Info("process start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainID),
		zap.String("in", cfg.In),
		zap.Int("transactions", len(txs)),
		zap.Int("concurrency", cfg.Concurrency),
	)

	if err := proc.ProcessBatch(ctx, txs); err != nil {
		return err
	}

	logger.Info("process complete", zap.Int("transactions", len(txs)))
	return nil
}

func readTransactions(path string, chainID uint64) ([]model.TransactionContext, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var txs []model.TransactionContext
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var txCtx model.TransactionContext
		if err := json.Unmarshal(line, &txCtx); err != nil {
			return nil, fmt.Errorf("parse transaction line: %w", err)
		}
		if txCtx.ChainID == 0 {
			txCtx.ChainID = chainID
		}
		txs = append(txs, txCtx)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return txs, nil
}
