package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:clientkit_rate_limit_states,alias:crs"`

	ID             string         `bun:"id,pk"`
	BucketKey      string         `bun:"bucket_key,notnull,unique"`
	Capacity       int            `bun:"capacity,notnull"`
	Tokens         int            `bun:"tokens,notnull"`
	RefillQuantity int            `bun:"refill_quantity,notnull"`
	RefillPeriodNS int64          `bun:"refill_period_ns,notnull"`
	LastRefill     time.Time      `bun:"last_refill,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
