// Package xaierr defines the tagged error-kind taxonomy shared by every
// consensus-facing package. It replaces exceptions-for-control-flow with
// typed result values: callers switch on Kind to decide whether to reject,
// punish a peer, or cache an orphan.
package xaierr

import "fmt"

// Kind identifies which of the error classes an Error belongs to. The set
// is closed and mirrors the error kinds a caller must be able to react to
// differently (reject silently, debit peer reputation, halt the node).
type Kind int

const (
	// KindValidation covers stateless shape, signature, and encoding
	// failures. A peer announcing one is debited by S reputation points.
	KindValidation Kind = iota

	// KindConsensus covers violations of the chain's own rules (PoW,
	// subsidy, nonce ordering). Debited by 2*S, banned on repeat.
	KindConsensus

	// KindConflict covers double-spends and nonce gaps. Rejected but not
	// debited unless the caller judges the pattern abusive.
	KindConflict

	// KindOrphan means the object's parent is not yet known. The object
	// is retained in an orphan pool and ancestors are requested.
	KindOrphan

	// KindRateLimit means the object was dropped due to a rate limit.
	// Dropped silently, debited by 1.
	KindRateLimit

	// KindStorage is fatal: the chain manager must stop mutating state
	// and surface the condition to the orchestrator.
	KindStorage

	// KindNetwork is transient: retry with backoff, close the peer after
	// N consecutive failures.
	KindNetwork

	// KindConfig is fatal at startup only.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindConsensus:
		return "ConsensusError"
	case KindConflict:
		return "ConflictError"
	case KindOrphan:
		return "OrphanError"
	case KindRateLimit:
		return "RateLimitError"
	case KindStorage:
		return "StorageError"
	case KindNetwork:
		return "NetworkError"
	case KindConfig:
		return "ConfigError"
	default:
		return "UnknownError"
	}
}

// Code is a specific reason within a Kind, e.g. CodeBadMerkleRoot within
// KindConsensus. Codes are package-local string constants so each package
// can grow its own vocabulary without a shared giant enum.
type Code string

// Error is the value every validation-adjacent function returns instead of
// raising a generic error. It carries enough structure for the mempool,
// chain manager, and P2P layer to each make their own policy decision from
// the same value.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s(%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind and code.
func New(kind Kind, code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new Error of the given kind and code.
func Wrap(cause error, kind Kind, code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	xe, ok := err.(*Error)
	return ok && xe.Kind == kind
}

// As extracts the *Error from err if it is one.
func As(err error) (*Error, bool) {
	xe, ok := err.(*Error)
	return xe, ok
}
