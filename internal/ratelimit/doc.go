// Package ratelimit implements a fixed-window per-client request counter.
//
// Every request increments the client's counter before it is compared with the
// ceiling, so the request that crosses the limit is itself rejected. The whole
// table is cleared at each window boundary by Run.
package ratelimit
