// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apperr defines the error taxonomy shared by every dockdb layer.
//
// # Description
//
// Every failure a caller can branch on is an *Error with a Type. Engine
// conflicts (PORT_IN_USE, NAME_IN_USE) tell the user to pick another port or
// name; DOCKER_ERROR carries the raw engine message in Details. The Wire
// shape is what the CLI prints with --json and what the HTTP API returns.
//
// # Examples
//
//	err := apperr.PortInUse(5432, cause)
//	if apperr.TypeOf(err) == apperr.TypePortInUse {
//	    // prompt for another port
//	}
//
//	payload := apperr.ToWire(err)
//	// {"error_type":"PORT_IN_USE","message":"Port 5432 is already in use",...}
package apperr

import (
	"errors"
	"fmt"
)

// Type classifies an Error.
type Type string

const (
	// TypeConfiguration covers malformed requests and unsupported kinds.
	// No engine call has been made when this is returned.
	TypeConfiguration Type = "CONFIGURATION_ERROR"

	// TypePortInUse means the engine could not bind the requested host port.
	TypePortInUse Type = "PORT_IN_USE"

	// TypeNameInUse means a container with the requested name already exists.
	TypeNameInUse Type = "NAME_IN_USE"

	// TypeEngine is any other failure reported by the container engine.
	TypeEngine Type = "DOCKER_ERROR"

	// TypeNotFound means no record, or no live container, for an id.
	TypeNotFound Type = "NOT_FOUND"

	// TypePersistence means the durable store rejected a save or load.
	TypePersistence Type = "PERSISTENCE_ERROR"

	// TypeTransport means the engine binary could not be invoked at all.
	TypeTransport Type = "TRANSPORT_ERROR"
)

// Error is a classified failure.
type Error struct {
	Type    Type
	Message string
	// Port is set for TypePortInUse.
	Port int
	// Details carries remediation text, or raw engine stderr for TypeEngine.
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Type, so callers can write
// errors.Is(err, &apperr.Error{Type: apperr.TypeNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

var _ error = (*Error)(nil)

// =============================================================================
// Constructors
// =============================================================================

// Configuration returns a TypeConfiguration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Type: TypeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// PortInUse returns a TypePortInUse error for the requested host port.
func PortInUse(port int, cause error) *Error {
	return &Error{
		Type:    TypePortInUse,
		Message: fmt.Sprintf("Port %d is already in use", port),
		Port:    port,
		Details: "You can change the port in the configuration and try again.",
		Err:     cause,
	}
}

// NameInUse returns a TypeNameInUse error for the requested container name.
func NameInUse(name string, cause error) *Error {
	return &Error{
		Type:    TypeNameInUse,
		Message: fmt.Sprintf("A container with the name '%s' already exists", name),
		Details: "Change the container name and try again.",
		Err:     cause,
	}
}

// Engine returns a TypeEngine error. message is the user-facing summary
// ("Error creating container"); details is the raw engine output.
func Engine(message, details string, cause error) *Error {
	return &Error{Type: TypeEngine, Message: message, Details: details, Err: cause}
}

// NotFound returns a TypeNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Persistence returns a TypePersistence error.
func Persistence(message string, cause error) *Error {
	return &Error{Type: TypePersistence, Message: message, Err: cause}
}

// Transport returns a TypeTransport error.
func Transport(message string, cause error) *Error {
	return &Error{Type: TypeTransport, Message: message, Err: cause}
}

// =============================================================================
// Inspection
// =============================================================================

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the Type of the first *Error in err's chain, or "" when
// err is nil or unclassified.
func TypeOf(err error) Type {
	if e, ok := As(err); ok {
		return e.Type
	}
	return ""
}

// Wire is the serialized failure payload of a lifecycle operation.
type Wire struct {
	ErrorType Type   `json:"error_type"`
	Message   string `json:"message"`
	Port      *int   `json:"port,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ToWire converts err to its wire payload. Unclassified errors become
// DOCKER_ERROR with the error text as the message.
func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}
	e, ok := As(err)
	if !ok {
		return Wire{ErrorType: TypeEngine, Message: err.Error()}
	}
	w := Wire{ErrorType: e.Type, Message: e.Message, Details: e.Details}
	if e.Type == TypePortInUse {
		port := e.Port
		w.Port = &port
	}
	if w.Details == "" && e.Err != nil && e.Type != TypeEngine {
		w.Details = e.Err.Error()
	}
	return w
}
