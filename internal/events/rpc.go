// Package events declares the typed events published around executor RPCs.
// Subscribers (internal/otel) turn them into telemetry; publishing is a
// no-op when no bus is installed.
package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// RPCClientStart is emitted before an executor RPC leaves the client.
type RPCClientStart struct {
	Service string
	Method  string
	Target  string
}

// RPCClientFinish is emitted after an executor RPC completes.
type RPCClientFinish struct {
	Service  string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}

// ServiceCallStart is emitted when the executor service receives a call.
type ServiceCallStart struct {
	Method string
}

// ServiceCallFinish is emitted when the executor service finishes a call.
type ServiceCallFinish struct {
	Method   string
	Err      error
	Duration time.Duration
}
