package xerrors

import (
	"errors"
	"fmt"
)

// Sentinel result kinds for the btree core, per the error handling design:
// the core never panics for ordinary control flow, every mutating or
// searching operation returns one of these (wrapped with context) instead.
//
// ErrNoSpace is raised by the slotarray/kvarray/btnode layers. For a leaf
// insert btree.Tree retries once after Compact and once after Split; if the
// entry still does not fit, Put returns ErrNoSpace to its caller.
// ErrKeyOutOfRange signals a programmer error in driver composition:
// btnode.Node's Insert and Remove raise it with debug.Assert in debug
// builds and return it otherwise, and btree descent returns it when an
// internal node holds no separator at or below the key.
var (
	// ErrNoSpace means a slot array has insufficient free space for the
	// requested slot plus payload. See above.
	ErrNoSpace = errors.New("foster-btree: no space")

	// ErrDuplicate means an insert found an existing slot for the key and
	// the array is not configured to accept multiple values per key.
	ErrDuplicate = errors.New("foster-btree: duplicate key")

	// ErrNotFound means a lookup, removal, or deletion found no slot for
	// the given key.
	ErrNotFound = errors.New("foster-btree: key not found")

	// ErrKeyOutOfRange means a key fell outside a node's effective range.
	// See above.
	ErrKeyOutOfRange = errors.New("foster-btree: key out of range")

	// ErrAllocFailure means the external page allocator refused to
	// allocate a new page. Surfaced to the caller unchanged; the driver
	// never retries it.
	ErrAllocFailure = errors.New("foster-btree: page allocation failed")
)

// withKey wraps a sentinel error with the key that triggered it, still
// satisfying errors.Is against the sentinel.
func withKey[K any](sentinel error, key K) error {
	return fmt.Errorf("%w: key=%v", sentinel, key)
}

// NotFound wraps ErrNotFound with the offending key.
func NotFound[K any](key K) error { return withKey(ErrNotFound, key) }

// Duplicate wraps ErrDuplicate with the offending key.
func Duplicate[K any](key K) error { return withKey(ErrDuplicate, key) }

// NoSpace wraps ErrNoSpace with the slot index a caller tried to use.
func NoSpace(slot uint32) error {
	return fmt.Errorf("%w: slot=%d", ErrNoSpace, slot)
}

// AllocFailure wraps ErrAllocFailure with the underlying allocator error,
// if any.
func AllocFailure(cause error) error {
	if cause == nil {
		return ErrAllocFailure
	}

	return fmt.Errorf("%w: %v", ErrAllocFailure, cause)
}

// AsA is a helper function to check if an error is of a specific type.
//
// AsA returns the error as the target type T if possible.
//
// This is a generic wrapper around [errors.As] for convenience.
func AsA[T error](err error) (_ T, ok bool) {
	var e T

	if ok := errors.As(err, &e); ok {
		return e, true
	}

	var zero T

	return zero, false
}
