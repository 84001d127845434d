package protocol

import "errors"

// Codes carried in ACK.code.
const (
	// The message could not be parsed or failed its schema.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// The world did not answer a join or attach in time.
	ErrWorldBusy = "E_WORLD_BUSY"

	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrQueueOverflow = "E_QUEUE_OVERFLOW"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrQueueOverflow:   {},
	ErrStale:           {},
	ErrInternal:        {},
}

// IsKnownCode reports whether code may appear in an ACK. The empty code
// (success) is known.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an ACT conversion error to its ACK code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadTarget):
		return ErrInvalidTarget
	case errors.Is(err, ErrBadAct):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}
