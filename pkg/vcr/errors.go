package vcr

import (
	"errors"
	"fmt"
)

// MissError is returned in replay mode when no cassette exists for the
// request fingerprint. The message carries the fingerprint so callers can
// record the missing interaction.
type MissError struct {
	Provider    string
	Fingerprint string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("VCR replay miss: no cassette for fingerprint %s (provider %s)", e.Fingerprint, e.Provider)
}

// NewMissError creates a MissError for the given provider and fingerprint.
func NewMissError(provider, fingerprint string) *MissError {
	return &MissError{Provider: provider, Fingerprint: fingerprint}
}

// IsMiss reports whether err is (or wraps) a replay miss.
func IsMiss(err error) bool {
	var me *MissError
	return errors.As(err, &me)
}

// StrictMissError is returned in strict mode when no cassette exists.
// Unlike MissError it is never recoverable by falling through to a live
// upstream call.
type StrictMissError struct {
	Provider    string
	Fingerprint string
}

func (e *StrictMissError) Error() string {
	return fmt.Sprintf("strict mode replay miss: no cassette for fingerprint %s (provider %s); record the interaction before running in strict mode", e.Fingerprint, e.Provider)
}

// NewStrictMissError creates a StrictMissError for the given provider and
// fingerprint.
func NewStrictMissError(provider, fingerprint string) *StrictMissError {
	return &StrictMissError{Provider: provider, Fingerprint: fingerprint}
}

// IsStrictMiss reports whether err is (or wraps) a strict-mode miss.
func IsStrictMiss(err error) bool {
	var se *StrictMissError
	return errors.As(err, &se)
}

// RecordForbiddenError is returned when a recording is attempted in strict
// mode, where every interaction must already have a cassette.
type RecordForbiddenError struct {
	Provider    string
	Fingerprint string
}

func (e *RecordForbiddenError) Error() string {
	return fmt.Sprintf("recording is forbidden in strict mode (provider %s, fingerprint %s)", e.Provider, e.Fingerprint)
}

// NewRecordForbiddenError creates a RecordForbiddenError.
func NewRecordForbiddenError(provider, fingerprint string) *RecordForbiddenError {
	return &RecordForbiddenError{Provider: provider, Fingerprint: fingerprint}
}

// IsRecordForbidden reports whether err is (or wraps) a strict-mode
// recording rejection.
func IsRecordForbidden(err error) bool {
	var re *RecordForbiddenError
	return errors.As(err, &re)
}

// TamperError is returned when a cassette carries a signature that does not
// verify against the configured secret. A tampered cassette is never treated
// as a miss; replay fails hard so the corruption is surfaced.
type TamperError struct {
	Provider    string
	Fingerprint string
	Path        string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("cassette signature verification failed for %s: file was modified or signed with a different secret", e.Path)
}

// NewTamperError creates a TamperError for the cassette at path.
func NewTamperError(provider, fingerprint, path string) *TamperError {
	return &TamperError{Provider: provider, Fingerprint: fingerprint, Path: path}
}

// IsTamper reports whether err is (or wraps) a signature verification
// failure.
func IsTamper(err error) bool {
	var te *TamperError
	return errors.As(err, &te)
}

// InvalidCassetteError is returned when a cassette file exists but cannot be
// parsed or is missing required fields.
type InvalidCassetteError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *InvalidCassetteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid cassette %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid cassette %s: %s", e.Path, e.Reason)
}

func (e *InvalidCassetteError) Unwrap() error {
	return e.Cause
}

// NewInvalidCassetteError creates an InvalidCassetteError.
func NewInvalidCassetteError(path, reason string, cause error) *InvalidCassetteError {
	return &InvalidCassetteError{Path: path, Reason: reason, Cause: cause}
}
