package domain

import "errors"

// ErrNotFound is returned when a fact cannot be found in the fact store.
var ErrNotFound = errors.New("fact not found")

// ErrAlreadyExists is returned when a fact with the same identifier is published twice.
var ErrAlreadyExists = errors.New("fact already exists")

// ErrScriptNotFound is returned when a proc references an unknown script.
var ErrScriptNotFound = errors.New("script not found")

// ErrInvalidUID is returned when an identifier string cannot be parsed.
var ErrInvalidUID = errors.New("invalid uid")

// ErrNoTarget is returned when a request has no resolvable target agent.
var ErrNoTarget = errors.New("request has no resolvable target")

// ErrUnknownKind is returned for request kinds outside the closed set.
var ErrUnknownKind = errors.New("unknown request kind")

// ErrStatusAlreadySet is the panic value raised on a second completion of a one-shot request.
var ErrStatusAlreadySet = errors.New("status already set")

// ErrStatusNotAllowed is the panic value raised when a status code is outside the request kind's enumeration.
var ErrStatusNotAllowed = errors.New("status not allowed for request kind")

// ErrStepFinished is the panic value raised when a terminal step status is overwritten.
var ErrStepFinished = errors.New("step already finished")

// ErrStatusRegression is the panic value raised when a step status moves backwards.
var ErrStatusRegression = errors.New("step status regression")
