// Package loadbalancer selects an upstream for a new client session and
// fails over to another live upstream when a connection attempt is refused.
package loadbalancer
