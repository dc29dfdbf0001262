package abistore

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"txscope/internal/chain"
)

// eip1967ImplementationSlot is keccak256("eip1967.proxy.implementation") - 1,
// the transparent-proxy implementation slot.
var eip1967ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// readImplementationSlot probes the EIP-1967 slot at a block height and
// returns the implementation address, or nil when the slot is empty.
func readImplementationSlot(ctx context.Context, reader chain.Reader, address common.Address, asOfBlock uint64) (*common.Address, error) {
	var blockPtr *big.Int
	if asOfBlock > 0 {
		blockPtr = new(big.Int).SetUint64(asOfBlock)
	}

	word, err := reader.StorageAt(ctx, address, eip1967ImplementationSlot, blockPtr)
	if err != nil {
		return nil, err
	}
	if len(word) == 0 {
		return nil, nil
	}

	impl := common.BytesToAddress(word)
	if impl == (common.Address{}) {
		return nil, nil
	}
	return &impl, nil
}
