package model

// DecodingError records one malformed multiSend entry without aborting the
// surrounding batch scan.
type DecodingError struct {
	Index int    `json:"index"`
	To    string `json:"to,omitempty"`
	Error string `json:"error"`
	Data  string `json:"data,omitempty"`
}

// BatchSummary aggregates sub-transaction statistics for a multisend batch.
// EstimatedGas is a heuristic (21000 + 15000 per sub-call with calldata), not a
// chain-accurate estimate.
type BatchSummary struct {
	TotalValue           string `json:"total_value"`
	SubTransactionCount  int    `json:"sub_transaction_count"`
	UniqueRecipientCount int    `json:"unique_recipient_count"`
	FailedDecodeCount    int    `json:"failed_decode_count"`
	EstimatedGas         uint64 `json:"estimated_gas"`
}

// MultisendBatch is an ordered sequence of decoded sub-calls. Order matches
// the binary payload exactly; sub-calls execute in that order on-chain.
// IsBatch is false when the sub-calls come from a Safe execTransaction
// wrapping a single plain call rather than a multiSend payload.
type MultisendBatch struct {
	IsBatch  bool            `json:"is_batch"`
	SubCalls []DecodedCall   `json:"sub_calls"`
	Errors   []DecodingError `json:"errors,omitempty"`
	Summary  BatchSummary    `json:"summary"`
}
