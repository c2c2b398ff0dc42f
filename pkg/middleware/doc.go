// Package middleware provides net/http middleware for the collaboration
// service's HTTP surface: Prometheus request metrics and OpenTelemetry
// request tracing. Both compose with chi's Use().
package middleware
