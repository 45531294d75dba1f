// Package errs provides the error sentinels and wrapping helpers shared
// across the connection, auth, and session-cipher layers. Fatal,
// non-retryable conditions are built with cockroachdb/errors so a
// caller can unwrap the chain to the exact failure without losing the
// stack the wrap site captured.
package errs

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrStreamRestartRequired is returned when the server closes the
	// stream with <stream:error code="515"/>, which requires the
	// connection to be torn down and fully redialed rather than resumed.
	ErrStreamRestartRequired = errors.New("waconnect: stream restart required")

	// ErrLoggedOut means the server rejected the session's credentials
	// outright; reconnecting with the same credentials will not help.
	ErrLoggedOut = errors.New("waconnect: device logged out")

	// ErrNotConnected is returned by operations that require an open
	// connection when none exists.
	ErrNotConnected = errors.New("waconnect: not connected")

	// ErrPairingTimedOut means no successful pairing occurred before the
	// QR ref rotation budget was exhausted.
	ErrPairingTimedOut = errors.New("waconnect: pairing timed out")

	// ErrAckTimeout is returned when a sent stanza's server ack does not
	// arrive within the configured query timeout.
	ErrAckTimeout = errors.New("waconnect: ack timeout")

	// ErrUnknownSession means no Signal session exists for a peer and
	// none of the inputs needed to establish one (a pre-key bundle) were
	// supplied.
	ErrUnknownSession = errors.New("waconnect: no session for peer")
)

// PairingFailedError reports why a device pairing attempt was aborted.
// Reason is one of the NoMoreRefs, AdvHmacInvalid, AccountSigInvalid, or
// MissingField constants below.
type PairingFailedError struct {
	Reason string
}

func (e *PairingFailedError) Error() string {
	return "waconnect: pairing failed: " + e.Reason
}

// Pairing failure reasons, surfaced on PairingFailedError.Reason.
const (
	PairingNoMoreRefs      = "no_more_refs"
	PairingAdvHmacInvalid  = "adv_hmac_invalid"
	PairingAccountSigInvalid = "account_sig_invalid"
	PairingMissingField    = "missing_field"
)

// Wrap annotates err with msg, preserving the original as the chain's
// cause for errors.Is/As.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Newf builds a new error with a stack trace and fmt-style formatting.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// Is delegates to cockroachdb/errors, which also matches across
// network-transported error chains should one ever cross a boundary.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
