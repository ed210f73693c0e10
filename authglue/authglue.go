// Package authglue names the boundary to the authentication-framework
// glue excluded from this repository's scope (spec §1 Non-goals: "the
// authentication-framework glue (capturing the password, session
// hooks)"). It declares the shape a real PAM session module would
// implement in terms of the mount controller, without implementing
// the cgo/PAM side itself.
package authglue

import (
	"github.com/pam-mount/volmount/mount"
	"github.com/pam-mount/volmount/volume"
)

// SessionHooks is the interface a PAM module's
// pam_sm_open_session/pam_sm_close_session shims would call through,
// once they have captured a username and password via the host
// authentication framework. Implementing this against cgo bindings to
// libpam is out of scope here.
type SessionHooks interface {
	// OpenSession mounts every volume the Loader resolves for user,
	// using password captured during authentication.
	OpenSession(user string, password []byte, volumes []volume.Record) error
	// CloseSession tears down every volume OpenSession mounted for user.
	CloseSession(user string, volumes []volume.Record) error
}

// Controller adapts a mount.Controller to SessionHooks. It exists so
// the glue boundary above is checkable against a real implementation,
// even though no cgo/PAM entry point is wired in this tree.
type Controller struct {
	Mount *mount.Controller
}

var _ SessionHooks = (*Controller)(nil)

// OpenSession mounts each volume in turn, stopping at the first
// failure (the caller decides whether a partial session is
// acceptable; this repo's Non-goals exclude that policy decision).
func (c *Controller) OpenSession(user string, password []byte, volumes []volume.Record) error {
	for i := range volumes {
		if err := c.Mount.Mount(&volumes[i], password); err != nil {
			return err
		}
	}
	return nil
}

// CloseSession unmounts each volume in turn, continuing past
// individual failures so one stuck volume doesn't strand the rest
// (spec §4.10's do_unmount treats per-step failures as warnings).
func (c *Controller) CloseSession(user string, volumes []volume.Record) error {
	var firstErr error
	for i := range volumes {
		if err := c.Mount.Unmount(&volumes[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
