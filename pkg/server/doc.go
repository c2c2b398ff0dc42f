// Package server hosts the collaboration endpoint: the websocket at /ws
// where every command envelope arrives, the per-connection protocol state
// machine that dispatches them, and the read-only HTTP surface over the
// session registry (/api/sessions, /api/stats, /metrics, /healthz).
//
// One Server owns one collab.Registry. Each websocket connection runs a
// read goroutine; commands touching the same session serialize on that
// session's mutex, so participants observe broadcasts in commit order.
package server
