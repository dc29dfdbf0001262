package decode

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"txscope/internal/model"
)

// Well-known 4-byte selectors, used to classify calls when no interface
// description is available or the strict decode fails.
const (
	SelectorTransfer              = "0xa9059cbb" // transfer(address,uint256)
	SelectorTransferFrom          = "0x23b872dd" // transferFrom(address,address,uint256)
	SelectorSafeTransferFrom      = "0x42842e0e" // safeTransferFrom(address,address,uint256)
	SelectorSafeTransferFromData  = "0xb88d4fde" // safeTransferFrom(address,address,uint256,bytes)
	SelectorSafeTransferFrom1155  = "0xf242432a" // safeTransferFrom(address,address,uint256,uint256,bytes)
	SelectorSafeBatchTransferFrom = "0x2eb2c2d6" // safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)
	SelectorApprove               = "0x095ea7b3" // approve(address,uint256)
	SelectorMultiSend             = "0x8d80ff0a" // multiSend(bytes)
	SelectorExecTransaction       = "0x6a761202" // execTransaction(...)
	SelectorUpgradeTo             = "0x3659cfe6" // upgradeTo(address)
	SelectorUpgradeToAndCall      = "0x4f1ef286" // upgradeToAndCall(address,bytes)
	SelectorExecute               = "0x1cff79cd" // execute(address,bytes)
	SelectorMulticall             = "0xac9650d8" // multicall(bytes[])
)

var knownSelectors = map[string]string{
	SelectorTransfer:              "transfer",
	SelectorTransferFrom:          "transferFrom",
	SelectorSafeTransferFrom:      "safeTransferFrom",
	SelectorSafeTransferFromData:  "safeTransferFrom",
	SelectorSafeTransferFrom1155:  "safeTransferFrom",
	SelectorSafeBatchTransferFrom: "safeBatchTransferFrom",
	SelectorApprove:               "approve",
	SelectorMultiSend:             "multiSend",
	SelectorExecTransaction:       "execTransaction",
	SelectorUpgradeTo:             "upgradeTo",
	SelectorUpgradeToAndCall:      "upgradeToAndCall",
	SelectorExecute:               "execute",
	SelectorMulticall:             "multicall",
}

// Selector returns the 0x-prefixed hex of the first 4 calldata bytes, or ""
// when the input is too short to carry one.
func Selector(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	return "0x" + hex.EncodeToString(input[:4])
}

// KnownSelector classifies calldata by selector alone, without an interface
// description. The second return is false for unrecognized selectors.
func KnownSelector(input []byte) (string, bool) {
	name, ok := knownSelectors[Selector(input)]
	return name, ok
}

// DecodeTokenTransfer parses ERC-20/721/1155 transfer variants straight from
// the calldata words, independent of ABI availability. Returns false when the
// selector is not a transfer or the argument words are short.
func DecodeTokenTransfer(input []byte) (string, []model.Argument, bool) {
	selector := Selector(input)
	name, ok := knownSelectors[selector]
	if !ok {
		return "", nil, false
	}
	args := input[4:]

	word := func(i int) []byte {
		return args[i*32 : (i+1)*32]
	}
	addressAt := func(i int) string {
		return common.BytesToAddress(word(i)).Hex()
	}
	uintAt := func(i int) string {
		return new(big.Int).SetBytes(word(i)).String()
	}

	switch selector {
	case SelectorTransfer:
		if len(args) < 64 {
			return "", nil, false
		}
		return name, []model.Argument{
			{Name: "to", Type: "address", Value: addressAt(0)},
			{Name: "amount", Type: "uint256", Value: uintAt(1)},
		}, true
	case SelectorTransferFrom, SelectorSafeTransferFrom, SelectorSafeTransferFromData:
		if len(args) < 96 {
			return "", nil, false
		}
		return name, []model.Argument{
			{Name: "from", Type: "address", Value: addressAt(0)},
			{Name: "to", Type: "address", Value: addressAt(1)},
			{Name: "amount", Type: "uint256", Value: uintAt(2)},
		}, true
	case SelectorSafeTransferFrom1155:
		if len(args) < 128 {
			return "", nil, false
		}
		return name, []model.Argument{
			{Name: "from", Type: "address", Value: addressAt(0)},
			{Name: "to", Type: "address", Value: addressAt(1)},
			{Name: "id", Type: "uint256", Value: uintAt(2)},
			{Name: "amount", Type: "uint256", Value: uintAt(3)},
		}, true
	default:
		return "", nil, false
	}
}
