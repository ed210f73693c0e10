// Package coreerr defines the error kinds surfaced by the volume mount
// core (see spec §7). Components fail with a distinct Kind; callers
// that need to branch on failure type read the Kind with Of, or use
// errors.Is against an *Error of the wanted Kind, instead of matching
// strings.
package coreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the category of failure a core component reported.
type Kind int

const (
	// Unknown is the zero value; never returned by the core itself.
	Unknown Kind = iota
	ConfigInvalid
	AlreadyMounted
	MountpointCreateFailed
	KeyDigestUnknown
	KeyCipherUnknown
	KeyIO
	KeyDecrypt
	LoopExhausted
	LoopOS
	CryptoHelperFailed
	MountHelperFailed
	UnmountHelperFailed
	RegistryIO
	RegistryLock
	TemplateExpand
	SpawnFailed
	NotSupported
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "CONFIG_INVALID"
	case AlreadyMounted:
		return "ALREADY_MOUNTED"
	case MountpointCreateFailed:
		return "MOUNTPOINT_CREATE_FAILED"
	case KeyDigestUnknown:
		return "KEY_DIGEST_UNKNOWN"
	case KeyCipherUnknown:
		return "KEY_CIPHER_UNKNOWN"
	case KeyIO:
		return "KEY_IO"
	case KeyDecrypt:
		return "KEY_DECRYPT"
	case LoopExhausted:
		return "LOOP_EXHAUSTED"
	case LoopOS:
		return "LOOP_OS"
	case CryptoHelperFailed:
		return "CRYPTO_HELPER_FAILED"
	case MountHelperFailed:
		return "MOUNT_HELPER_FAILED"
	case UnmountHelperFailed:
		return "UNMOUNT_HELPER_FAILED"
	case RegistryIO:
		return "REGISTRY_IO"
	case RegistryLock:
		return "REGISTRY_LOCK"
	case TemplateExpand:
		return "TEMPLATE_EXPAND"
	case SpawnFailed:
		return "SPAWN_FAILED"
	case NotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned by core components. It
// carries the Kind so callers can branch with errors.Is, plus a
// wrapped cause for diagnostics.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, letting
// callers write errors.Is(err, coreerr.New(coreerr.KeyIO, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches context and a Kind to an underlying error, the way the
// teacher attaches context with pkg/errors at I/O and exec call sites.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: errors.WithStack(cause)}
}

// Of reports the Kind carried by err, or Unknown if err is not a
// *Error (or is nil).
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
