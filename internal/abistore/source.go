package abistore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrNotFound signals that the source has no verified interface description
// for the address. It is terminal: the store caches an unresolved entry.
var ErrNotFound = errors.New("abistore: interface description not found")

// Source fetches a raw interface description from an external registry.
type Source interface {
	FetchABI(ctx context.Context, address common.Address, chainID uint64) (string, error)
}

// EtherscanSource fetches verified contract ABIs from an Etherscan-style
// registry (module=contract&action=getabi).
type EtherscanSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewEtherscanSource(baseURL, apiKey string, httpClient *http.Client) *EtherscanSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EtherscanSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// FetchABI queries the registry for the verified ABI of an address.
func (s *EtherscanSource) FetchABI(ctx context.Context, address common.Address, chainID uint64) (string, error) {
	if s.baseURL == "" {
		return "", ErrNotFound
	}

	query := url.Values{}
	query.Set("chainid", fmt.Sprintf("%d", chainID))
	query.Set("module", "contract")
	query.Set("action", "getabi")
	query.Set("address", address.Hex())
	if s.apiKey != "" {
		query.Set("apikey", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "build abi request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "abi source request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("abi source status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", errors.Wrap(err, "read abi response")
	}

	var parsed etherscanResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, "parse abi response")
	}

	if parsed.Status != "1" {
		if strings.Contains(strings.ToLower(parsed.Result), "not verified") {
			return "", ErrNotFound
		}
		return "", errors.Errorf("abi source error: %s", parsed.Result)
	}

	return parsed.Result, nil
}

// ParseInterface normalizes the raw description into a parsed ABI. Sources
// return the fragment list as a bare array, an object with an "abi" field, or
// a JSON-encoded string of either; nothing duck-typed leaks past here.
func ParseInterface(raw string) (*abi.ABI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty interface description")
	}

	if strings.HasPrefix(raw, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(raw), &unquoted); err != nil {
			return nil, fmt.Errorf("unquote interface description: %w", err)
		}
		raw = strings.TrimSpace(unquoted)
	}

	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			Abi json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, fmt.Errorf("parse interface wrapper: %w", err)
		}
		if len(wrapper.Abi) == 0 {
			return nil, fmt.Errorf("interface wrapper has no abi field")
		}
		raw = string(wrapper.Abi)
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse interface description: %w", err)
	}
	return &parsed, nil
}
