package decode

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"txscope/internal/abistore"
	"txscope/internal/model"
)

// LogDecoderConfig configures fast-path behavior. ExtraFixed maps additional
// topic0 hashes onto a named fixed decoder ("transfer" or "buy").
type LogDecoderConfig struct {
	ExtraFixed map[string]string
}

// LogDecoder decodes event logs against a resolved interface description,
// with a fixed-signature fast path and a trial-decode fallback.
type LogDecoder struct {
	fixed  map[common.Hash]fixedEvent
	logger *zap.Logger
}

func NewLogDecoder(cfg LogDecoderConfig, logger *zap.Logger) (*LogDecoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fixed := defaultFastPath()
	for topic0, name := range cfg.ExtraFixed {
		dec, ok := fixedDecoders[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unsupported fixed decoder: %s", name)
		}
		raw, err := hexutil.Decode(topic0)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("invalid topic0 in fixed map: %s", topic0)
		}
		fixed[common.BytesToHash(raw)] = fixedEvent{name: name, decode: dec}
	}

	return &LogDecoder{fixed: fixed, logger: logger}, nil
}

// HasFixed reports whether topic0 is in the fixed fast-path table. Callers
// use it to skip interface resolution for logs the fast path fully decodes.
func (d *LogDecoder) HasFixed(topic0 string) bool {
	raw, err := hexutil.Decode(topic0)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, ok := d.fixed[common.BytesToHash(raw)]
	return ok
}

// DecodeLog decodes one log. It always returns a result: a failed decode
// yields an empty Name with the raw topics and data preserved.
//
// Fallback order: fixed fast path, strict topic0 match, trial decode over the
// full event set, raw.
func (d *LogDecoder) DecodeLog(log model.LogRecord, entry *abistore.Entry) model.DecodedEvent {
	out := model.DecodedEvent{
		Address:  log.Address,
		Topic0:   log.Topic0(),
		LogIndex: log.LogIndex,
		Raw:      model.RawLog{Topics: log.Topics, Data: log.Data},
	}
	if len(log.Topics) == 0 {
		return out
	}

	topic0Raw, err := hexutil.Decode(log.Topics[0])
	if err != nil || len(topic0Raw) != 32 {
		return out
	}
	topic0 := common.BytesToHash(topic0Raw)

	if fixed, ok := d.fixed[topic0]; ok {
		args, err := fixed.decode(log)
		if err == nil {
			out.Name = fixed.name
			out.Args = args
			return out
		}
		d.logger.Debug("fast path decode failed",
			zap.String("event", fixed.name),
			zap.String("tx_hash", log.TxHash),
			zap.Error(err),
		)
	}

	if !entry.Resolved() {
		return out
	}

	if event, err := entry.ABI.EventByID(topic0); err == nil {
		if args, err := decodeEventArgs(*event, log); err == nil {
			out.Name = event.RawName
			out.Args = args
			return out
		}
	}

	// Some descriptions carry events whose computed ID differs from topic0
	// (anonymous events, shadowed fragments); select by trial instead. The
	// walk is name-ordered so ties resolve the same way on every run.
	names := make([]string, 0, len(entry.ABI.Events))
	for name := range entry.ABI.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		event := entry.ABI.Events[name]
		args, err := decodeEventArgs(event, log)
		if err != nil {
			continue
		}
		out.Name = event.RawName
		out.Args = args
		return out
	}

	return out
}

// decodeEventArgs decodes indexed args from topics and non-indexed args from
// data, returning them in declaration order.
func decodeEventArgs(event abi.Event, log model.LogRecord) ([]model.Argument, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}

	topicValues := make([]interface{}, len(indexed))
	for i, arg := range indexed {
		value, err := parseTopicValue(arg, log.Topics[i+1])
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i+1, err)
		}
		topicValues[i] = value
	}

	data, err := decodeHex(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	dataValues, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	args := make([]model.Argument, 0, len(event.Inputs))
	topicIdx, dataIdx := 0, 0
	for _, input := range event.Inputs {
		arg := model.Argument{
			Name:    input.Name,
			Type:    input.Type.String(),
			Indexed: input.Indexed,
		}
		if input.Indexed {
			arg.Value = normalizeValue(topicValues[topicIdx])
			topicIdx++
		} else {
			if dataIdx >= len(dataValues) {
				return nil, fmt.Errorf("missing data value for %s", input.Name)
			}
			arg.Value = normalizeValue(dataValues[dataIdx])
			dataIdx++
		}
		args = append(args, arg)
	}

	return args, nil
}

func parseTopicValue(arg abi.Argument, topic string) (interface{}, error) {
	raw, err := hexutil.Decode(topic)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("topic length %d", len(raw))
	}

	switch arg.Type.T {
	case abi.AddressTy:
		return common.BytesToAddress(raw), nil
	case abi.IntTy, abi.UintTy:
		return abi.ReadInteger(arg.Type, raw)
	case abi.BoolTy:
		return raw[31] == 1, nil
	default:
		// Dynamic types appear in topics only as their keccak hash.
		return topic, nil
	}
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// normalizeValue renders decoded ABI values into storage-safe forms: big ints
// as decimal strings, addresses and byte slices as hex.
func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case *big.Int:
		return typed.String()
	case common.Address:
		return typed.Hex()
	case common.Hash:
		return typed.Hex()
	case []byte:
		return hexutil.Encode(typed)
	case [32]byte:
		return hexutil.Encode(typed[:])
	case bool, string:
		return typed
	case []common.Address:
		out := make([]string, len(typed))
		for i, addr := range typed {
			out[i] = addr.Hex()
		}
		return out
	case []*big.Int:
		out := make([]string, len(typed))
		for i, v := range typed {
			out[i] = v.String()
		}
		return out
	default:
		return fmt.Sprintf("%v", typed)
	}
}
