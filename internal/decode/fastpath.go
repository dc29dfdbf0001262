package decode

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"txscope/internal/model"
)

// The two highest-volume signatures bypass interface resolution entirely:
// their fixed-width layout is parsed straight from topics/data. This is a
// lookup table of {signature -> fixed decoder}, checked before the general
// fallback chain.
var (
	// Transfer(address,address,uint256), shared by ERC-20 and ERC-721.
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// TokensBought(address,uint256,uint256), a fixed market buy event.
	TokensBoughtTopic = crypto.Keccak256Hash([]byte("TokensBought(address,uint256,uint256)"))
)

type fixedDecoder func(log model.LogRecord) ([]model.Argument, error)

var fixedDecoders = map[string]fixedDecoder{
	"transfer": decodeFixedTransfer,
	"buy":      decodeFixedBuy,
}

func defaultFastPath() map[common.Hash]fixedEvent {
	return map[common.Hash]fixedEvent{
		TransferTopic:     {name: "Transfer", decode: decodeFixedTransfer},
		TokensBoughtTopic: {name: "TokensBought", decode: decodeFixedBuy},
	}
}

type fixedEvent struct {
	name   string
	decode fixedDecoder
}

// decodeFixedTransfer handles both layouts sharing the Transfer signature:
// ERC-20 (3 topics, value in data) and ERC-721 (4 topics, tokenId indexed).
func decodeFixedTransfer(log model.LogRecord) ([]model.Argument, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("transfer log has %d topics", len(log.Topics))
	}

	from, err := addressFromTopic(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("from topic: %w", err)
	}
	to, err := addressFromTopic(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("to topic: %w", err)
	}

	args := []model.Argument{
		{Name: "from", Type: "address", Value: from.Hex(), Indexed: true},
		{Name: "to", Type: "address", Value: to.Hex(), Indexed: true},
	}

	if len(log.Topics) >= 4 {
		tokenID, err := uintFromTopic(log.Topics[3])
		if err != nil {
			return nil, fmt.Errorf("tokenId topic: %w", err)
		}
		args = append(args, model.Argument{Name: "tokenId", Type: "uint256", Value: tokenID.String(), Indexed: true})
		return args, nil
	}

	value, err := uintFromData(log.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("value word: %w", err)
	}
	args = append(args, model.Argument{Name: "value", Type: "uint256", Value: value.String()})
	return args, nil
}

func decodeFixedBuy(log model.LogRecord) ([]model.Argument, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("buy log has %d topics", len(log.Topics))
	}

	buyer, err := addressFromTopic(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("buyer topic: %w", err)
	}
	amount, err := uintFromData(log.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("amount word: %w", err)
	}
	price, err := uintFromData(log.Data, 1)
	if err != nil {
		return nil, fmt.Errorf("price word: %w", err)
	}

	return []model.Argument{
		{Name: "buyer", Type: "address", Value: buyer.Hex(), Indexed: true},
		{Name: "amount", Type: "uint256", Value: amount.String()},
		{Name: "price", Type: "uint256", Value: price.String()},
	}, nil
}

func addressFromTopic(topic string) (common.Address, error) {
	raw, err := hexutil.Decode(topic)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) != 32 {
		return common.Address{}, fmt.Errorf("topic length %d", len(raw))
	}
	return common.BytesToAddress(raw), nil
}

func uintFromTopic(topic string) (*big.Int, error) {
	raw, err := hexutil.Decode(topic)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func uintFromData(data string, word int) (*big.Int, error) {
	raw, err := decodeHex(data)
	if err != nil {
		return nil, err
	}
	if len(raw) < (word+1)*32 {
		return nil, fmt.Errorf("data holds %d bytes, want word %d", len(raw), word)
	}
	return new(big.Int).SetBytes(raw[word*32 : (word+1)*32]), nil
}

func decodeHex(value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(value, "0x") {
		value = "0x" + value
	}
	return hexutil.Decode(value)
}
