package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registries, and transports
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist (connection, room, delivery record)
// - ErrConnectionGone: write attempted against a closed or dead transport
// - ErrQueueFull: a bounded send or work queue rejected the item
// - ErrExpired: token or timer-bound state has expired
// - ErrUnavailable: external resource temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrConnectionGone = errors.New("connection gone")
	ErrQueueFull      = errors.New("queue full")
	ErrExpired        = errors.New("expired")
	ErrUnavailable    = errors.New("unavailable")
)
