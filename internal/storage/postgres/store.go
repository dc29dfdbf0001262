package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"txscope/internal/model"
)

// Store provides Postgres persistence for transaction results.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertResult stores one processed transaction: the transaction row keyed by
// hash, log rows keyed by (hash, log_index), and sub-transaction rows keyed
// by (hash, sub_index). Re-storing the same result overwrites in place.
func (s *Store) UpsertResult(ctx context.Context, result *model.TransactionResult) error {
	if result == nil {
		return nil
	}

	decodedFunction, err := marshalNullable(result.DecodedFunction)
	if err != nil {
		return fmt.Errorf("marshal decoded function: %w", err)
	}
	var summary []byte
	if result.Multisend != nil {
		summary, err = json.Marshal(result.Multisend.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO transactions (
			chain_id, block_number, hash, from_address, to_address, value, input,
			timestamp, decoded_function, is_multisend, multisend_summary, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now(), now())
		ON CONFLICT (hash)
		DO UPDATE SET
			decoded_function = EXCLUDED.decoded_function,
			is_multisend = EXCLUDED.is_multisend,
			multisend_summary = EXCLUDED.multisend_summary,
			updated_at = now()
	`,
		int64(result.ChainID),
		int64(result.BlockNumber),
		result.Hash,
		result.From,
		result.To,
		result.Value,
		result.Input,
		int64(result.Timestamp),
		decodedFunction,
		result.IsMultisend,
		summary,
	)

	for _, log := range result.Logs {
		args, err := marshalNullable(log.Args)
		if err != nil {
			return fmt.Errorf("marshal log args: %w", err)
		}
		raw, err := json.Marshal(log.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw log: %w", err)
		}
		batch.Queue(`
			INSERT INTO transaction_logs (
				hash, log_index, address, topic0, event_name, args, raw, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now())
			ON CONFLICT (hash, log_index)
			DO UPDATE SET
				event_name = EXCLUDED.event_name,
				args = EXCLUDED.args,
				raw = EXCLUDED.raw,
				updated_at = now()
		`,
			result.Hash,
			int64(log.LogIndex),
			log.Address,
			log.Topic0,
			log.Name,
			args,
			raw,
		)
	}

	if result.Multisend != nil {
		for i, subCall := range result.Multisend.SubCalls {
			args, err := marshalNullable(subCall.Args)
			if err != nil {
				return fmt.Errorf("marshal sub-call args: %w", err)
			}
			batch.Queue(`
				INSERT INTO sub_transactions (
					hash, sub_index, to_address, value, operation, data, function_name,
					args, implementation, created_at, updated_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
				ON CONFLICT (hash, sub_index)
				DO UPDATE SET
					function_name = EXCLUDED.function_name,
					args = EXCLUDED.args,
					implementation = EXCLUDED.implementation,
					updated_at = now()
			`,
				result.Hash,
				i,
				subCall.To,
				subCall.Value,
				subCall.Operation.String(),
				subCall.Data,
				subCall.FunctionName,
				args,
				subCall.Implementation,
			)
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func marshalNullable(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}
