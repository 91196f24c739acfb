// Package service implements the Service Handler Abstraction: a single
// Dispatcher registration that demultiplexes call, subscribe, and
// unsubscribe over a shared subscription Registry, keyed by connection
// and tearing down synchronously on disconnect.
package service
