// Package dispatch implements the path-routed request/response/subscription
// engine at the center of the daemon: pattern compilation, an ordered
// route table, the per-request Context, and the dispatch engine that
// walks routes via a next() continuation and composes nested
// sub-dispatchers.
package dispatch
