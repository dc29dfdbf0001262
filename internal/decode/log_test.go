package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txscope/internal/abistore"
	"txscope/internal/model"
)

const counterABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "setter", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "oldValue", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newValue", "type": "uint256"}
    ],
    "name": "ValueChanged",
    "type": "event"
  }
]`

func newTestLogDecoder(t *testing.T) *LogDecoder {
	t.Helper()
	decoder, err := NewLogDecoder(LogDecoderConfig{}, nil)
	if err != nil {
		t.Fatalf("log decoder: %v", err)
	}
	return decoder
}

func topicFromAddress(addr common.Address) string {
	return common.BytesToHash(addr.Bytes()).Hex()
}

func TestDecodeLogTransferFastPath(t *testing.T) {
	decoder := newTestLogDecoder(t)

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		Topics: []string{
			TransferTopic.Hex(),
			topicFromAddress(from),
			topicFromAddress(to),
		},
		Data: hexutil.Encode(common.LeftPadBytes(big.NewInt(500).Bytes(), 32)),
	}

	// No interface description at all: the fast path must still decode.
	event := decoder.DecodeLog(record, nil)
	if event.Name != "Transfer" {
		t.Fatalf("expected Transfer, got %q", event.Name)
	}
	if len(event.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(event.Args))
	}
	if event.Args[0].Value != from.Hex() || event.Args[1].Value != to.Hex() {
		t.Fatalf("address args mismatch: %+v", event.Args)
	}
	if event.Args[2].Value != "500" {
		t.Fatalf("value mismatch: %v", event.Args[2].Value)
	}
}

func TestDecodeLogTransferFastPathERC721(t *testing.T) {
	decoder := newTestLogDecoder(t)

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		Topics: []string{
			TransferTopic.Hex(),
			topicFromAddress(from),
			topicFromAddress(to),
			common.BigToHash(big.NewInt(77)).Hex(),
		},
		Data: "0x",
	}

	event := decoder.DecodeLog(record, nil)
	if event.Name != "Transfer" {
		t.Fatalf("expected Transfer, got %q", event.Name)
	}
	if event.Args[2].Name != "tokenId" || event.Args[2].Value != "77" {
		t.Fatalf("tokenId mismatch: %+v", event.Args[2])
	}
}

func TestDecodeLogAgainstDescription(t *testing.T) {
	decoder := newTestLogDecoder(t)

	parsed, err := abistore.ParseInterface(counterABIJSON)
	if err != nil {
		t.Fatalf("parse interface: %v", err)
	}
	entry := &abistore.Entry{ABI: parsed}

	event := parsed.Events["ValueChanged"]
	setter := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		Topics:  []string{event.ID.Hex(), topicFromAddress(setter)},
		Data:    hexutil.Encode(data),
	}

	decoded := decoder.DecodeLog(record, entry)
	if decoded.Name != "ValueChanged" {
		t.Fatalf("expected ValueChanged, got %q", decoded.Name)
	}
	if len(decoded.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(decoded.Args))
	}
	if decoded.Args[0].Value != setter.Hex() {
		t.Fatalf("setter mismatch: %v", decoded.Args[0].Value)
	}
	if decoded.Args[1].Value != "1" || decoded.Args[2].Value != "2" {
		t.Fatalf("values mismatch: %+v", decoded.Args)
	}
}

func TestDecodeLogFailurePreservesRaw(t *testing.T) {
	decoder := newTestLogDecoder(t)

	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		Topics:  []string{"0x" + "99" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"},
		Data:    "0xdeadbeef",
	}

	event := decoder.DecodeLog(record, nil)
	if event.Name != "" {
		t.Fatalf("expected no name, got %q", event.Name)
	}
	if event.Raw.Data != "0xdeadbeef" {
		t.Fatalf("raw data lost: %q", event.Raw.Data)
	}
	if len(event.Raw.Topics) != 1 {
		t.Fatalf("raw topics lost: %+v", event.Raw.Topics)
	}
}

func TestDecodeLogBuyFastPath(t *testing.T) {
	decoder := newTestLogDecoder(t)

	buyer := common.HexToAddress("0x5555555555555555555555555555555555555555")
	data := append(
		common.LeftPadBytes(big.NewInt(3).Bytes(), 32),
		common.LeftPadBytes(big.NewInt(1500).Bytes(), 32)...,
	)

	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		Topics:  []string{TokensBoughtTopic.Hex(), topicFromAddress(buyer)},
		Data:    hexutil.Encode(data),
	}

	event := decoder.DecodeLog(record, nil)
	if event.Name != "TokensBought" {
		t.Fatalf("expected TokensBought, got %q", event.Name)
	}
	if event.Args[0].Value != buyer.Hex() {
		t.Fatalf("buyer mismatch: %v", event.Args[0].Value)
	}
	if event.Args[1].Value != "3" || event.Args[2].Value != "1500" {
		t.Fatalf("amounts mismatch: %+v", event.Args)
	}
}

func TestNewLogDecoderExtraFixedMapping(t *testing.T) {
	extraTopic := "0x" + "ab" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	decoder, err := NewLogDecoder(LogDecoderConfig{
		ExtraFixed: map[string]string{extraTopic: "transfer"},
	}, nil)
	if err != nil {
		t.Fatalf("log decoder: %v", err)
	}

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	record := model.LogRecord{
		Topics: []string{extraTopic, topicFromAddress(from), topicFromAddress(to)},
		Data:   hexutil.Encode(common.LeftPadBytes(big.NewInt(9).Bytes(), 32)),
	}

	event := decoder.DecodeLog(record, nil)
	if event.Name != "transfer" {
		t.Fatalf("expected mapped decoder, got %q", event.Name)
	}

	if _, err := NewLogDecoder(LogDecoderConfig{
		ExtraFixed: map[string]string{extraTopic: "bogus"},
	}, nil); err == nil {
		t.Fatalf("unknown fixed decoder name must fail")
	}
}

const twinEventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Deposited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Credited",
    "type": "event"
  }
]`

func TestDecodeLogTrialFallbackIsDeterministic(t *testing.T) {
	decoder := newTestLogDecoder(t)

	parsed, err := abistore.ParseInterface(twinEventsABIJSON)
	if err != nil {
		t.Fatalf("parse interface: %v", err)
	}
	entry := &abistore.Entry{ABI: parsed}

	account := common.HexToAddress("0x4444444444444444444444444444444444444444")
	record := model.LogRecord{
		Address: "0x3333333333333333333333333333333333333333",
		// topic0 matches neither event ID, forcing the trial walk; both
		// fragments share a layout so either would decode.
		Topics: []string{
			"0x" + "77" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee",
			topicFromAddress(account),
		},
		Data: hexutil.Encode(common.LeftPadBytes(big.NewInt(8).Bytes(), 32)),
	}

	for i := 0; i < 20; i++ {
		decoded := decoder.DecodeLog(record, entry)
		if decoded.Name != "Credited" {
			t.Fatalf("trial fallback must pick the first name in order, got %q", decoded.Name)
		}
	}
}

func TestHasFixed(t *testing.T) {
	decoder := newTestLogDecoder(t)

	if !decoder.HasFixed(TransferTopic.Hex()) {
		t.Fatalf("Transfer topic must be in the fixed table")
	}
	if !decoder.HasFixed(TokensBoughtTopic.Hex()) {
		t.Fatalf("TokensBought topic must be in the fixed table")
	}
	if decoder.HasFixed("0x" + "77" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee") {
		t.Fatalf("unknown topic must not be in the fixed table")
	}
	if decoder.HasFixed("") || decoder.HasFixed("0x01") {
		t.Fatalf("malformed topics must not be in the fixed table")
	}
}

func TestDecodeLogNoTopics(t *testing.T) {
	decoder := newTestLogDecoder(t)

	event := decoder.DecodeLog(model.LogRecord{Address: "0x01", Data: "0x01"}, nil)
	if event.Name != "" {
		t.Fatalf("expected no name, got %q", event.Name)
	}
	if event.Raw.Data != "0x01" {
		t.Fatalf("raw data lost")
	}
}
