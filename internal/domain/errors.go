// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates an entity with the same identity already exists.
var ErrConflict = errors.New("conflict: entity already exists")

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("validation error")
