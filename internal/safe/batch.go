package safe

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"txscope/internal/decode"
	"txscope/internal/model"
)

// DefaultMaxDepth bounds nested multiSend recursion. Deeper nesting degrades
// to a recorded decode error on that entry, never unbounded recursion.
const DefaultMaxDepth = 8

// multiSend packed entry: operation (1) + to (20) + value (32) + dataLength (32).
const entryHeaderSize = 85

var (
	multiSendSelector       = hexutil.MustDecode(decode.SelectorMultiSend)
	execTransactionSelector = hexutil.MustDecode(decode.SelectorExecTransaction)
)

// BatchDecoder reconstructs Safe execTransaction / multiSend payloads into an
// ordered list of sub-calls.
type BatchDecoder struct {
	calls    *decode.CallDecoder
	maxDepth int
	logger   *zap.Logger
}

func NewBatchDecoder(calls *decode.CallDecoder, maxDepth int, logger *zap.Logger) *BatchDecoder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchDecoder{calls: calls, maxDepth: maxDepth, logger: logger}
}

// DecodeSafeTransaction recognizes a direct multiSend call or a Safe
// execTransaction wrapping one. Returns nil when the input is neither; the
// caller then falls back to plain call decoding.
func (d *BatchDecoder) DecodeSafeTransaction(ctx context.Context, chainID uint64, input []byte, asOfBlock uint64) *model.MultisendBatch {
	if payload, ok := unpackMultiSend(input); ok {
		subCalls, errs := d.parseMultiSend(ctx, chainID, payload, asOfBlock, 0)
		return d.newBatch(true, subCalls, errs)
	}

	call, ok := unpackExecTransaction(input)
	if !ok {
		return nil
	}

	// A Safe transaction's payload is frequently itself a multiSend batch.
	inner, err := decodeHex(call.Data)
	if err == nil {
		if payload, ok := unpackMultiSend(inner); ok {
			subCalls, errs := d.parseMultiSend(ctx, chainID, payload, asOfBlock, 0)
			return d.newBatch(true, subCalls, errs)
		}
	}

	d.decodeSubCall(ctx, chainID, &call, asOfBlock)
	return d.newBatch(false, []model.DecodedCall{call}, nil)
}

func (d *BatchDecoder) newBatch(isBatch bool, subCalls []model.DecodedCall, errs []model.DecodingError) *model.MultisendBatch {
	return &model.MultisendBatch{
		IsBatch:  isBatch,
		SubCalls: subCalls,
		Errors:   errs,
		Summary:  Summarize(subCalls),
	}
}

// parseMultiSend walks the packed payload left to right until the buffer is
// exhausted. Entries whose declared length points past the buffer end abort
// the scan with one recorded error; everything parsed so far is kept.
func (d *BatchDecoder) parseMultiSend(ctx context.Context, chainID uint64, payload []byte, asOfBlock uint64, depth int) ([]model.DecodedCall, []model.DecodingError) {
	var subCalls []model.DecodedCall
	var errs []model.DecodingError

	offset := 0
	for index := 0; offset < len(payload); index++ {
		if len(payload)-offset < entryHeaderSize {
			errs = append(errs, model.DecodingError{
				Index: index,
				Error: fmt.Sprintf("truncated entry header: %d bytes remain, want %d", len(payload)-offset, entryHeaderSize),
				Data:  hexutil.Encode(payload[offset:]),
			})
			break
		}

		operation := payload[offset]
		to := common.BytesToAddress(payload[offset+1 : offset+21])
		value := new(big.Int).SetBytes(payload[offset+21 : offset+53])
		dataLen := new(big.Int).SetBytes(payload[offset+53 : offset+85])
		offset += entryHeaderSize

		if !dataLen.IsUint64() || dataLen.Uint64() > uint64(len(payload)-offset) {
			errs = append(errs, model.DecodingError{
				Index: index,
				To:    to.Hex(),
				Error: fmt.Sprintf("declared data length %s exceeds %d remaining bytes", dataLen, len(payload)-offset),
			})
			break
		}
		data := payload[offset : offset+int(dataLen.Uint64())]
		offset += int(dataLen.Uint64())

		if operation > 1 {
			// Malformed operation byte; the declared length let us advance,
			// so record and keep scanning.
			errs = append(errs, model.DecodingError{
				Index: index,
				To:    to.Hex(),
				Error: fmt.Sprintf("invalid operation byte %d", operation),
				Data:  hexutil.Encode(data),
			})
			continue
		}

		// Nested multiSend: inline its sub-calls in place, preserving
		// on-chain execution order.
		if inner, ok := unpackMultiSend(data); ok {
			if depth+1 >= d.maxDepth {
				errs = append(errs, model.DecodingError{
					Index: index,
					To:    to.Hex(),
					Error: fmt.Sprintf("nested multiSend exceeds depth %d", d.maxDepth),
					Data:  hexutil.Encode(data),
				})
				subCalls = append(subCalls, model.DecodedCall{
					To:           to.Hex(),
					Value:        value.String(),
					Operation:    model.Operation(operation),
					Data:         hexutil.Encode(data),
					FunctionName: "multiSend",
				})
				continue
			}
			innerCalls, innerErrs := d.parseMultiSend(ctx, chainID, inner, asOfBlock, depth+1)
			subCalls = append(subCalls, innerCalls...)
			errs = append(errs, innerErrs...)
			continue
		}

		subCall := model.DecodedCall{
			To:        to.Hex(),
			Value:     value.String(),
			Operation: model.Operation(operation),
			Data:      hexutil.Encode(data),
		}
		d.decodeSubCall(ctx, chainID, &subCall, asOfBlock)
		subCalls = append(subCalls, subCall)
	}

	return subCalls, errs
}

// decodeSubCall fills in function name and args. Token transfers are
// recognized straight from the calldata first, independent of ABI
// availability; proxy-aware call decoding is the fallback.
func (d *BatchDecoder) decodeSubCall(ctx context.Context, chainID uint64, call *model.DecodedCall, asOfBlock uint64) {
	data, err := decodeHex(call.Data)
	if err != nil || len(data) == 0 {
		return
	}

	if name, args, ok := decode.DecodeTokenTransfer(data); ok {
		call.FunctionName = name
		call.Args = args
		return
	}

	if d.calls == nil {
		return
	}
	name, args, impl := d.calls.Decode(ctx, chainID, common.HexToAddress(call.To), data, asOfBlock)
	call.FunctionName = name
	call.Args = args
	if impl != nil {
		call.Implementation = impl.Hex()
	}
}

// unpackMultiSend strictly decodes input as multiSend(bytes) and returns the
// packed transactions payload.
func unpackMultiSend(input []byte) ([]byte, bool) {
	if len(input) < 4 || !bytes.Equal(input[:4], multiSendSelector) {
		return nil, false
	}
	safeABI, err := SafeABI()
	if err != nil {
		return nil, false
	}
	values, err := safeABI.Methods["multiSend"].Inputs.Unpack(input[4:])
	if err != nil || len(values) != 1 {
		return nil, false
	}
	payload, ok := values[0].([]byte)
	return payload, ok
}

// unpackExecTransaction strictly decodes input as a Safe execTransaction and
// returns the inner call. Gas and signature fields are dropped; signature
// verification is not this engine's concern.
func unpackExecTransaction(input []byte) (model.DecodedCall, bool) {
	if len(input) < 4 || !bytes.Equal(input[:4], execTransactionSelector) {
		return model.DecodedCall{}, false
	}
	safeABI, err := SafeABI()
	if err != nil {
		return model.DecodedCall{}, false
	}
	values, err := safeABI.Methods["execTransaction"].Inputs.Unpack(input[4:])
	if err != nil || len(values) < 4 {
		return model.DecodedCall{}, false
	}

	to, ok1 := values[0].(common.Address)
	value, ok2 := values[1].(*big.Int)
	data, ok3 := values[2].([]byte)
	operation, ok4 := values[3].(uint8)
	if !ok1 || !ok2 || !ok3 || !ok4 || operation > 1 {
		return model.DecodedCall{}, false
	}

	return model.DecodedCall{
		To:        to.Hex(),
		Value:     value.String(),
		Operation: model.Operation(operation),
		Data:      hexutil.Encode(data),
	}, true
}

func decodeHex(value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	return hexutil.Decode(value)
}
