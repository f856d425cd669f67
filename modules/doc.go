// Package modules holds the dispatch path every API module shares: a
// module-scoped request queue drained by one consumer on the shared worker
// pool, a token bucket acquired before each call and the single 503 retry.
package modules
