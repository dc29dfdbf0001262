package safe

import (
	"math/big"
	"strings"

	"txscope/internal/model"
)

// Summary gas heuristic: base transaction cost plus a flat per-call cost for
// every sub-call carrying calldata. Not a chain-accurate estimate.
const (
	summaryBaseGas    = 21000
	summaryPerCallGas = 15000
)

// Summarize aggregates sub-transaction statistics. Total value uses big-int
// arithmetic; recipients are de-duplicated on the lower-cased address. A
// plain value transfer (empty calldata) is not counted as a decode failure.
func Summarize(subCalls []model.DecodedCall) model.BatchSummary {
	totalValue := new(big.Int)
	recipients := make(map[string]struct{}, len(subCalls))
	failed := 0
	withData := 0

	for _, call := range subCalls {
		if value, ok := new(big.Int).SetString(call.Value, 10); ok {
			totalValue.Add(totalValue, value)
		}
		if call.To != "" {
			recipients[strings.ToLower(call.To)] = struct{}{}
		}
		if !call.IsValueTransfer() {
			withData++
			if call.FunctionName == "" {
				failed++
			}
		}
	}

	return model.BatchSummary{
		TotalValue:           totalValue.String(),
		SubTransactionCount:  len(subCalls),
		UniqueRecipientCount: len(recipients),
		FailedDecodeCount:    failed,
		EstimatedGas:         summaryBaseGas + summaryPerCallGas*uint64(withData),
	}
}
