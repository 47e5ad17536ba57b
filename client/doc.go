// Package client implements the per-connection line-protocol state
// machine spoken by tabserver clients: a HELLO gate followed by
// verbatim forwarding of every subsequent byte chunk to the broker's
// event dispatcher.
package client
