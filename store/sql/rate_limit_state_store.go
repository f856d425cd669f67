package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-clientkit/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore keeps one row per bucket key.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key string) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if key == "" {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("bucket_key", "=", key),
		repository.OrderBy("updated_at DESC"),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toDomain(), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if state.Key == "" {
		return fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findRateLimitStateTx(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := false
		if record == nil {
			created = true
			record = &rateLimitStateRecord{
				ID:        uuid.NewString(),
				BucketKey: state.Key,
				CreatedAt: state.UpdatedAt.UTC(),
			}
		}
		record.Capacity = state.Capacity
		record.Tokens = state.Tokens
		record.RefillQuantity = state.RefillQuantity
		record.RefillPeriodNS = int64(state.RefillPeriod)
		record.LastRefill = state.LastRefill.UTC()
		record.Metadata = copyAnyMap(state.Metadata)
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	return ratelimit.State{
		Key:            r.BucketKey,
		Capacity:       r.Capacity,
		Tokens:         r.Tokens,
		RefillQuantity: r.RefillQuantity,
		RefillPeriod:   time.Duration(r.RefillPeriodNS),
		LastRefill:     r.LastRefill.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		Metadata:       copyAnyMap(r.Metadata),
	}
}

func findRateLimitStateTx(ctx context.Context, tx bun.Tx, key string) (*rateLimitStateRecord, error) {
	record := &rateLimitStateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.bucket_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// EnsureSchema creates the rate limit state table when it does not exist.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	_, err := db.NewCreateTable().
		Model((*rateLimitStateRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: create rate-limit state table: %w", err)
	}
	return nil
}
