// Package healthcheck implements active health checking for upstream servers.
// Each cycle probes every configured upstream with a GET request over a fresh
// connection and atomically replaces the registry's live set with the
// upstreams that answered 200.
package healthcheck
