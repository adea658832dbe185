// Package kernel owns the rtnetlink command socket of one network namespace.
//
// A Channel runs a single worker goroutine that holds the socket. Callers
// submit rule requests through a queue and wait for the correlated kernel
// acknowledgment, so exactly one request is in flight per namespace and
// requests are executed in submission order.
package kernel
