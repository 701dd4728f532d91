package sync

import "errors"

// The engine's error taxonomy. Callers classify with errors.Is; the HTTP
// layer maps each class to its wire representation.
var (
	// ErrVersionNotSupported rejects a pull or push whose protocol version
	// does not match what this engine implements. Never retried.
	ErrVersionNotSupported = errors.New("sync: protocol version not supported")

	// ErrClientStateNotFound indicates the client referenced by a mutation
	// belongs to a different client group than the one pushing.
	ErrClientStateNotFound = errors.New("sync: client state not found")

	// ErrOutOfSequence rejects a mutation whose id skips ahead of the
	// client's last applied mutation. The client may retry the batch once
	// the missing mutation is available.
	ErrOutOfSequence = errors.New("sync: mutation out of sequence")

	// ErrUnauthorized covers client-group ownership mismatches and role
	// checks that fail. Aborts the affected operation, never retried.
	ErrUnauthorized = errors.New("sync: unauthorized")

	// ErrRetryExhausted surfaces after the retry supervisor gives up on
	// serialization conflicts. A service-level failure, not client-correctable.
	ErrRetryExhausted = errors.New("sync: transaction retries exhausted")

	// ErrConfiguration indicates an unknown domain, role, or mutation name:
	// a deployment/version mismatch between client and server schema.
	ErrConfiguration = errors.New("sync: configuration error")
)
