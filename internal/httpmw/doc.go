// Package httpmw holds the HTTP middleware wrapped around the admin API.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request id, client ip, rate limiting, tracing, release
// headers, metrics, request-scoped logging, then the chi router.
//
// Query strings and user agents are kept out of access logs.
package httpmw
