package config

import "github.com/pam-mount/volmount/volume"

// Loader is the boundary to the per-user configuration overlay system
// named in §1's Non-goals (XML/text per-user volume definitions). It
// is declared here as an external collaborator, not implemented: this
// repository owns only the operator-level Config above. A concrete
// Loader would resolve a username to the set of volume.Record entries
// that user's overlay file declares.
type Loader interface {
	// LoadUserVolumes returns the volume records configured for user,
	// merged with whatever global defaults the Loader's backing store
	// applies.
	LoadUserVolumes(user string) ([]volume.Record, error)
}
