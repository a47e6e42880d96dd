package store

import (
	"errors"
	"log/slog"
)

var (
	// ErrNotFound is returned by Find when no entry exists for a fingerprint.
	ErrNotFound = errors.New("knowledge not found")

	// ErrCorrupt marks persisted state that could not be decoded. Load
	// recovers from it by returning an empty map.
	ErrCorrupt = errors.New("knowledge storage corrupt")

	// ErrWrite wraps every failed persistence write.
	ErrWrite = errors.New("knowledge storage write failed")
)

// Options configures a store.
type Options struct {
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
