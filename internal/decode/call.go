package decode

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"txscope/internal/abistore"
	"txscope/internal/model"
)

// CallDecoder decodes function calls against resolved interface descriptions,
// with a known-selector fallback.
type CallDecoder struct {
	abis   *abistore.Store
	logger *zap.Logger
}

func NewCallDecoder(abis *abistore.Store, logger *zap.Logger) *CallDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallDecoder{abis: abis, logger: logger}
}

// Decode classifies the calldata of a call to `to`. It never returns an
// error: an unrecognized selector yields an empty function name, and the
// caller keeps the raw input.
//
// Fallback order: value transfer (empty input), strict decode against the
// selector's fragment, direct token-transfer parsing, static selector table.
func (d *CallDecoder) Decode(ctx context.Context, chainID uint64, to common.Address, input []byte, asOfBlock uint64) (string, []model.Argument, *common.Address) {
	if len(input) == 0 {
		return "", nil, nil
	}

	var entry *abistore.Entry
	if d.abis != nil {
		entry = d.abis.Resolve(ctx, chainID, to, asOfBlock)
	}

	var impl *common.Address
	if entry != nil {
		impl = entry.Implementation
	}

	if entry.Resolved() && len(input) >= 4 {
		if method, err := entry.ABI.MethodById(input[:4]); err == nil {
			values, err := method.Inputs.Unpack(input[4:])
			if err == nil {
				args := make([]model.Argument, len(method.Inputs))
				for i, arg := range method.Inputs {
					args[i] = model.Argument{
						Name:  argName(arg.Name, i),
						Type:  arg.Type.String(),
						Value: normalizeValue(values[i]),
					}
				}
				return method.Name, args, impl
			}
			d.logger.Debug("strict call decode failed",
				zap.String("to", to.Hex()),
				zap.String("method", method.Name),
				zap.Error(err),
			)
		}
	}

	// Partial result: name from the selector, transfer args parsed directly
	// when the layout allows, raw otherwise.
	if name, args, ok := DecodeTokenTransfer(input); ok {
		return name, args, impl
	}
	if name, ok := KnownSelector(input); ok {
		return name, nil, impl
	}

	return "", nil, impl
}

func argName(name string, index int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("arg%d", index)
}
