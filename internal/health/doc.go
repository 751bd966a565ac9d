// Package health provides composable probes and the HTTP handlers that
// expose them as liveness and readiness endpoints.
//
// Probes combine with [All] and [Any]. [Timeout] bounds a slow dependency
// check such as a storage round trip. [ShutdownGate] fails readiness while
// the process drains.
package health
