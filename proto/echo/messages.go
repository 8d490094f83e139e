// Package echo defines the plain Go message types the illustrative
// services exchange. The framework core treats every payload as opaque
// bytes (see internal/grpctransport's raw codec); serializing those
// application-level messages is explicitly the application's job, not
// the core's, so this package marshals with encoding/json rather than a
// generated wire format.
package echo

import (
	"encoding/json"

	"github.com/nvaistore-labs/rpcflow/pkg/slot"
)

// PingRequest/PingResponse back services/ping.
type PingRequest struct{}

type PingResponse struct {
	Msg string `json:"msg"`
}

// ShutdownRequest/ShutdownResponse back services/shutdown.
type ShutdownRequest struct {
	Reason string `json:"reason"`
}

type ShutdownResponse struct {
	Result bool   `json:"result"`
	Msg    string `json:"msg"`
}

// ServingStatus mirrors the standard two-state health check result.
type ServingStatus int

const (
	Unknown ServingStatus = iota
	Serving
	NotServing
)

// HealthCheckRequest/HealthCheckResponse back services/healthcheck.
type HealthCheckRequest struct {
	Service string `json:"service"`
}

type HealthCheckResponse struct {
	Status ServingStatus `json:"status"`
}

// EchoRequest/EchoResponse back services/echostream: Count copies of
// Msg are streamed back, one per response.
type EchoRequest struct {
	Msg   string `json:"msg"`
	Count int    `json:"count"`
}

type EchoResponse struct {
	Msg string `json:"msg"`
	Seq int    `json:"seq"`
}

// Marshal encodes v as JSON into a slot.Envelope.
func Marshal(v any) (*slot.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &slot.Envelope{Body: data}, nil
}

// Unmarshal decodes env's body as JSON into v. A nil env decodes as an
// empty object, so handlers can call Unmarshal unconditionally even when
// a shape passes nil on a framework-driven cleanup re-entry.
func Unmarshal(env *slot.Envelope, v any) error {
	if env == nil || len(env.Body) == 0 {
		return nil
	}
	return json.Unmarshal(env.Body, v)
}
