package model

// TransactionContext is the raw transaction handed over by the external
// event-subscription layer.
type TransactionContext struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	Timestamp   uint64 `json:"timestamp"`
}

// TransactionResult is the fully processed projection of one transaction.
// Immutable after construction; persisted exactly once via an idempotent
// upsert keyed by Hash.
type TransactionResult struct {
	ChainID         uint64          `json:"chain_id"`
	BlockNumber     uint64          `json:"block_number"`
	Hash            string          `json:"hash"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Value           string          `json:"value"`
	Input           string          `json:"input"`
	Timestamp       uint64          `json:"timestamp"`
	DecodedFunction *DecodedCall    `json:"decoded_function,omitempty"`
	Logs            []DecodedEvent  `json:"logs"`
	IsMultisend     bool            `json:"is_multisend"`
	Multisend       *MultisendBatch `json:"multisend,omitempty"`
}
