package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"txscope/internal/abistore"
	"txscope/internal/chain"
	"txscope/internal/decode"
	"txscope/internal/model"
	"txscope/internal/retry"
	"txscope/internal/safe"
	"txscope/internal/storage"
)

// ErrReceiptUnavailable signals that the receipt could not be fetched; the
// transaction is retried on a later indexing pass, triggered externally.
var ErrReceiptUnavailable = errors.New("processor: receipt unavailable")

// Config holds processor settings.
type Config struct {
	// Timeout bounds one transaction's processing. Zero disables it.
	Timeout time.Duration
	// Concurrency bounds ProcessBatch workers.
	Concurrency int
	Retry       retry.Policy
}

// Processor orchestrates the per-transaction decode pipeline: receipt,
// top-level call, logs, multisend detection, summary, persist.
type Processor struct {
	cfg     Config
	chain   chain.Reader
	abis    *abistore.Store
	logs    *decode.LogDecoder
	calls   *decode.CallDecoder
	batches *safe.BatchDecoder
	store   storage.Store
	logger  *zap.Logger
}

func New(
	cfg Config,
	chainReader chain.Reader,
	abis *abistore.Store,
	logDecoder *decode.LogDecoder,
	callDecoder *decode.CallDecoder,
	batchDecoder *safe.BatchDecoder,
	store storage.Store,
	logger *zap.Logger,
) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:     cfg,
		chain:   chainReader,
		abis:    abis,
		logs:    logDecoder,
		calls:   callDecoder,
		batches: batchDecoder,
		store:   store,
		logger:  logger,
	}
}

// ProcessTransaction runs the full pipeline for one transaction. Decode
// failures never abort: each stage substitutes a null result so partial data
// is persisted rather than the row dropped. Only a receipt fetch failure
// returns an error, signalling external retry.
func (p *Processor) ProcessTransaction(ctx context.Context, txCtx model.TransactionContext) (*model.TransactionResult, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	result := &model.TransactionResult{
		ChainID:     txCtx.ChainID,
		BlockNumber: txCtx.BlockNumber,
		Hash:        txCtx.Hash,
		From:        txCtx.From,
		To:          txCtx.To,
		Value:       txCtx.Value,
		Input:       txCtx.Input,
		Timestamp:   txCtx.Timestamp,
		Logs:        []model.DecodedEvent{},
	}

	receipt, err := p.fetchReceipt(ctx, txCtx.Hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Timed out: persist the bare transaction so the row exists and
			// mark nothing decoded; a later pass retries.
			p.persist(ctx, result)
			return result, nil
		}
		p.logger.Warn("receipt fetch failed",
			zap.String("hash", txCtx.Hash),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s", ErrReceiptUnavailable, err)
	}

	input, inputErr := decodeHexInput(txCtx.Input)
	if inputErr != nil {
		p.logger.Warn("malformed transaction input",
			zap.String("hash", txCtx.Hash),
			zap.Error(inputErr),
		)
	}

	p.stage("decode_call", txCtx.Hash, func() {
		result.DecodedFunction = p.decodeTopLevelCall(ctx, txCtx, input)
	})

	p.stage("decode_logs", txCtx.Hash, func() {
		result.Logs = p.decodeLogs(ctx, txCtx, receipt)
	})

	p.stage("detect_multisend", txCtx.Hash, func() {
		if p.batches == nil || len(input) == 0 {
			return
		}
		if batch := p.batches.DecodeSafeTransaction(ctx, txCtx.ChainID, input, txCtx.BlockNumber); batch != nil {
			// A Safe execTransaction around one plain call still gets its
			// sub-call stored, but is not a multisend.
			result.IsMultisend = batch.IsBatch
			result.Multisend = batch
		}
	})

	p.persist(ctx, result)
	return result, nil
}

// ProcessBatch processes transactions with bounded concurrency. Per-
// transaction failures are logged and do not stop the batch.
func (p *Processor) ProcessBatch(ctx context.Context, txs []model.TransactionContext) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Concurrency)
	for _, txCtx := range txs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(txCtx model.TransactionContext) {
			defer func() { <-sem; wg.Done() }()
			if _, err := p.ProcessTransaction(ctx, txCtx); err != nil {
				p.logger.Warn("transaction processing failed",
					zap.String("hash", txCtx.Hash),
					zap.Error(err),
				)
			}
		}(txCtx)
	}

	wg.Wait()
	return nil
}

func (p *Processor) decodeTopLevelCall(ctx context.Context, txCtx model.TransactionContext, input []byte) *model.DecodedCall {
	call := &model.DecodedCall{
		To:        txCtx.To,
		Value:     txCtx.Value,
		Operation: model.OpCall,
		Data:      txCtx.Input,
	}
	if p.calls == nil || len(input) == 0 || txCtx.To == "" {
		return call
	}

	name, args, impl := p.calls.Decode(ctx, txCtx.ChainID, common.HexToAddress(txCtx.To), input, txCtx.BlockNumber)
	call.FunctionName = name
	call.Args = args
	if impl != nil {
		call.Implementation = impl.Hex()
	}
	return call
}

func (p *Processor) decodeLogs(ctx context.Context, txCtx model.TransactionContext, receipt *types.Receipt) []model.DecodedEvent {
	if receipt == nil || p.logs == nil {
		return []model.DecodedEvent{}
	}

	// Log order is preserved as returned by the receipt.
	decoded := make([]model.DecodedEvent, 0, len(receipt.Logs))
	for _, logEntry := range receipt.Logs {
		record := logRecordFrom(txCtx, logEntry)

		// Fast-path signatures decode from the fixed layout alone; resolving
		// the emitter's interface would cost a registry round trip for
		// nothing.
		var entry *abistore.Entry
		if p.abis != nil && !p.logs.HasFixed(record.Topic0()) {
			entry = p.abis.Resolve(ctx, txCtx.ChainID, logEntry.Address, txCtx.BlockNumber)
		}
		decoded = append(decoded, p.logs.DecodeLog(record, entry))
	}
	return decoded
}

func (p *Processor) fetchReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if p.chain == nil {
		return nil, fmt.Errorf("chain reader is nil")
	}

	var receipt *types.Receipt
	err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = p.chain.TransactionReceipt(ctx, common.HexToHash(hash))
		return err
	})
	return receipt, err
}

// persist writes the result detached from the per-transaction deadline: when
// the decode stages burn the whole budget the row must still land, with its
// null fields marking it for a later pass.
func (p *Processor) persist(ctx context.Context, result *model.TransactionResult) {
	if p.store == nil {
		return
	}
	if err := p.store.UpsertResult(context.WithoutCancel(ctx), result); err != nil {
		p.logger.Error("persist failed",
			zap.String("hash", result.Hash),
			zap.Error(err),
		)
	}
}

// stage runs one pipeline stage, isolating its failures so the remaining
// stages still run and partial data is persisted.
func (p *Processor) stage(name, hash string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked",
				zap.String("stage", name),
				zap.String("hash", hash),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func logRecordFrom(txCtx model.TransactionContext, logEntry *types.Log) model.LogRecord {
	topics := make([]string, len(logEntry.Topics))
	for i, topic := range logEntry.Topics {
		topics[i] = topic.Hex()
	}
	return model.LogRecord{
		ChainID:     txCtx.ChainID,
		BlockNumber: logEntry.BlockNumber,
		TxHash:      logEntry.TxHash.Hex(),
		LogIndex:    uint64(logEntry.Index),
		Address:     logEntry.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(logEntry.Data),
		Removed:     logEntry.Removed,
	}
}

func decodeHexInput(value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	return hexutil.Decode(value)
}
