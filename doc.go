// Package iqrfgw is a request/response client for the IQRF Gateway Daemon.
//
// The daemon speaks JSON over several channels: a POSIX message queue pair, MQTT topics,
// a WebSocket connection, or anything bridged onto them such as NATS subjects. None of
// these channels correlate replies. A client writes a request carrying a message id and
// then has to pick its own reply out of whatever else arrives: replies to earlier,
// abandoned requests, asynchronous notifications, intermediate verbose phases, garbage.
// This module does that picking.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        cmd/iqrfgw, batch            │  One request, or many on
//	│                                     │  a worker pool
//	└─────────────────────────────────────┘
//	           ↓ one client per worker
//	┌─────────────────────────────────────┐
//	│           correlator                │  Build, send, poll, match
//	│  (Client, Correlator, Governor)     │  by id, time out
//	└─────────────────────────────────────┘
//	           ↓ envelopes via              ↓ bytes via
//	┌──────────────────────┐   ┌──────────────────────────────┐
//	│       message        │   │          transport           │
//	│  legacy | current    │   │ posixmq mqtt websocket nats  │
//	│  JSON shapes         │   │ loopback                     │
//	└──────────────────────┘   └──────────────────────────────┘
//
// # Request Lifecycle
//
//  1. The client builds an envelope with a fresh correlation id (a UUID) and encodes it
//     in the configured JSON shape. The shape is configuration, never guessed.
//  2. The transport accepts the bytes or refuses them at once with a busy error when its
//     outbound queue is full.
//  3. The correlator polls the transport until the deadline. Each payload is decoded and
//     compared by id. Mismatches, intermediate phases and undecodable payloads are
//     discarded and counted.
//  4. The first terminal envelope with the request's id ends the wait. If none arrives the
//     result is a timeout, even when the window held nothing but garbage.
//
// Every request ends in exactly one Result: Success, Timeout, TransportBusy or
// TransportError. Failures are values; the client never retries on its own and never
// panics across its API.
//
// # Concurrency
//
// A client has at most one request in flight. Concurrency comes from independent
// client and transport pairs, which is what the batch package builds on top of
// pkg/worker.
//
// # Packages
//
//   - errors: classified errors (transient, invalid, fatal) and request sentinels
//   - message: envelopes, daemon status, the legacy and current codecs
//   - correlator: clients, the polling loop, clocks and id generation
//   - transport and its subpackages: the channel bindings and their registry
//   - natsclient: NATS connection management with a circuit breaker
//   - dpa: DPA frames in the daemon's dotted hex notation and raw requests
//   - batch: repeated and per-node requests with statistics
//   - config: layered JSON/YAML configuration with environment overrides
//   - metric: Prometheus metrics and their HTTP endpoint
package iqrfgw
