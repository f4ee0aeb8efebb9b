// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates malformed caller input; the store is never touched.
var ErrValidation = errors.New("invalid argument")

// ErrPersistence indicates a durable write or read failure. An append that
// fails with this error is not committed.
var ErrPersistence = errors.New("persistence failure")

// ErrCorruptRecord indicates an unparsable persisted record encountered
// during load. Never fatal to startup: the valid prefix is kept.
var ErrCorruptRecord = errors.New("corrupt history record")
