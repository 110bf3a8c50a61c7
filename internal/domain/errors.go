// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested task or step does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState indicates an operation was attempted against a task or
// step whose current state does not permit it.
var ErrInvalidState = errors.New("invalid state")
