// Package handler implements the per-connection proxy loop. Each client
// connection is paired with one upstream connection; requests are read,
// rate limited, tagged with X-Forwarded-For, forwarded, and the upstream's
// responses relayed back until either side goes away.
package handler
