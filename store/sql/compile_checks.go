package sqlstore

import "github.com/goliatone/go-clientkit/ratelimit"

var (
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
