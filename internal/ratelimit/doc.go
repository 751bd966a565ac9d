// Package ratelimit throttles admin API requests per client address.
//
// The limiter is in-memory and per process. It bounds a single noisy client
// and caps how many addresses it tracks; it does not stop a distributed
// flood, which belongs to an upstream WAF or load balancer.
package ratelimit
