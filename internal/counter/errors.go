package counter

import (
	"errors"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDataCorruption   = errors.New("data corruption")
	ErrConflict         = errors.New("conflict")
)

// Kind classifies a failed increment so the caller can decide between retrying, alerting and dropping.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindStoreUnavailable
	KindDataCorruption
	KindConflict
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindDataCorruption:
		return "data_corruption"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Retryable reports whether redelivering the same invocation may succeed.
func (k Kind) Retryable() bool {
	return k == KindStoreUnavailable || k == KindConflict
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrDataCorruption):
		return KindDataCorruption
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindUnknown
	}
}
