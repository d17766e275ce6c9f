// Package transport sends signed requests to the payment gateway over
// HTTP.
//
// Each call passes through an optional token-bucket rate limiter and an
// optional circuit breaker before it is sent. Every request carries an
// X-Request-ID header and the caller's trace context. Calls are never
// retried: transport failures and non-2xx replies surface as
// util.NetworkError and the caller decides what to do next.
package transport
