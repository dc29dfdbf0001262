package abistore

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"txscope/internal/chain"
	"txscope/internal/retry"
)

// Entry is the cached resolution for a chain+address pair. ABI is nil when the
// address could not be resolved; the entry is still cached so repeat lookups
// short-circuit instead of hitting the source again.
type Entry struct {
	Chain          uint64
	Address        common.Address
	AsOfBlock      uint64
	ABI            *abi.ABI
	IsProxy        bool
	Implementation *common.Address
}

// Resolved reports whether the entry carries a usable interface description.
func (e *Entry) Resolved() bool {
	return e != nil && e.ABI != nil
}

// Store resolves and caches interface descriptions, following transparent
// proxies to their implementation.
type Store struct {
	cache  Cache
	source Source
	chain  chain.Reader
	policy retry.Policy
	logger *zap.Logger
}

func NewStore(cache Cache, source Source, chainReader chain.Reader, policy retry.Policy, logger *zap.Logger) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cache:  cache,
		source: source,
		chain:  chainReader,
		policy: policy,
		logger: logger,
	}
}

// Resolve returns the entry for a chain+address, resolving and caching it on
// first sight. It never returns an error: any failure degrades to an
// unresolved entry, which callers must treat as a valid terminal state.
//
// A cache hit is returned regardless of asOfBlock; the cache keeps only the
// last observed implementation.
func (s *Store) Resolve(ctx context.Context, chainID uint64, address common.Address, asOfBlock uint64) *Entry {
	key := CacheKey(chainID, address)
	if entry, ok := s.cache.Get(key); ok {
		return entry
	}

	entry := s.resolve(ctx, chainID, address, asOfBlock, make(map[string]struct{}))
	s.cache.Put(key, entry)
	return entry
}

func (s *Store) resolve(ctx context.Context, chainID uint64, address common.Address, asOfBlock uint64, visiting map[string]struct{}) *Entry {
	entry := &Entry{Chain: chainID, Address: address, AsOfBlock: asOfBlock}

	key := CacheKey(chainID, address)
	if _, ok := visiting[key]; ok {
		// Proxy cycle; leave unresolved rather than looping.
		return entry
	}
	visiting[key] = struct{}{}

	if isContract, err := s.hasCode(ctx, address); err == nil && !isContract {
		return entry
	}

	parsed, err := s.fetchInterface(ctx, chainID, address)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("interface resolution failed",
				zap.Uint64("chain_id", chainID),
				zap.String("address", address.Hex()),
				zap.Error(err),
			)
		}
	} else {
		entry.ABI = parsed
	}

	impl, err := s.implementation(ctx, address, asOfBlock)
	if err != nil {
		s.logger.Debug("implementation slot read failed",
			zap.String("address", address.Hex()),
			zap.Error(err),
		)
		return entry
	}
	if impl == nil || *impl == address {
		return entry
	}

	entry.IsProxy = true
	entry.Implementation = impl

	// Prefer the implementation's description for decoding; the proxy address
	// stays the externally visible contract.
	implKey := CacheKey(chainID, *impl)
	implEntry, ok := s.cache.Get(implKey)
	if !ok {
		implEntry = s.resolve(ctx, chainID, *impl, asOfBlock, visiting)
		s.cache.Put(implKey, implEntry)
	}
	if implEntry.Resolved() {
		entry.ABI = implEntry.ABI
	}

	return entry
}

func (s *Store) fetchInterface(ctx context.Context, chainID uint64, address common.Address) (*abi.ABI, error) {
	if s.source == nil {
		return nil, ErrNotFound
	}

	var raw string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.source.FetchABI(ctx, address, chainID)
		if errors.Is(err, ErrNotFound) {
			// Terminal; retrying will not make the source verify the contract.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNotFound
	}

	return ParseInterface(raw)
}

func (s *Store) implementation(ctx context.Context, address common.Address, asOfBlock uint64) (*common.Address, error) {
	if s.chain == nil {
		return nil, nil
	}

	var impl *common.Address
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		impl, err = readImplementationSlot(ctx, s.chain, address, asOfBlock)
		return err
	})
	return impl, err
}

func (s *Store) hasCode(ctx context.Context, address common.Address) (bool, error) {
	if s.chain == nil {
		return true, nil
	}

	var code []byte
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		code, err = s.chain.CodeAt(ctx, address, nil)
		return err
	})
	if err != nil {
		return true, err
	}
	return len(code) > 0, nil
}
