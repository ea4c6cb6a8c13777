// Package listener accepts client TCP connections and hands each one to a
// ConnectionHandler on its own goroutine.
package listener
