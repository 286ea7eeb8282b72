// Package sageerr defines the typed error kinds shared across the memory
// service. Every subsystem wraps its failures in one of these kinds so the
// JSON-RPC layer can map them to stable wire error codes without inspecting
// arbitrary error strings.
package sageerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/breaker filtering and JSON-RPC mapping.
type Kind string

const (
	// KindConfiguration covers missing or invalid configuration/env.
	KindConfiguration Kind = "configuration"
	// KindValidation covers input that violates a precondition.
	KindValidation Kind = "validation"
	// KindMemoryProvider covers generic backend failures.
	KindMemoryProvider Kind = "memory_provider"
	// KindDatabaseConnection is a MemoryProvider subkind for DB faults.
	KindDatabaseConnection Kind = "database_connection"
	// KindEmbeddingService is a MemoryProvider subkind for embedding/HTTP faults.
	KindEmbeddingService Kind = "embedding_service"
	// KindGeneratorService is a MemoryProvider subkind for chat-completion faults.
	KindGeneratorService Kind = "generator_service"
	// KindBreakerOpen marks a call rejected by an open circuit breaker.
	KindBreakerOpen Kind = "breaker_open"
	// KindResourceManagement covers internal quota errors.
	KindResourceManagement Kind = "resource_management"
	// KindMemoryLimitExceeded is a ResourceManagement subkind.
	KindMemoryLimitExceeded Kind = "memory_limit_exceeded"
	// KindAsyncRuntime covers scheduling/cancellation errors.
	KindAsyncRuntime Kind = "async_runtime"
	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindPlatformCompatibility is reserved for the subprocess utilities.
	KindPlatformCompatibility Kind = "platform_compatibility"
	// KindInternal is the fallback for anything not otherwise classified.
	KindInternal Kind = "internal"
)

// Error is the concrete error type carried through the system. It always
// has a message and may carry a details map for structured logging.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// KindOf extracts the Kind of err, walking the Unwrap chain. Returns the
// empty Kind if err is nil and KindInternal if it carries no *Error in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Is reports whether err's kind (or any subkind pairing below) matches kind.
func Is(err error, kind Kind) bool {
	k := KindOf(err)
	if k == kind {
		return true
	}
	switch kind {
	case KindMemoryProvider:
		return k == KindDatabaseConnection || k == KindEmbeddingService || k == KindGeneratorService
	case KindResourceManagement:
		return k == KindMemoryLimitExceeded
	}
	return false
}

// Validation is a convenience constructor used by storage/tool-schema checks.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// BreakerOpen is a convenience constructor for breaker rejections.
func BreakerOpen(name string) *Error {
	return New(KindBreakerOpen, "circuit breaker open: "+name)
}
