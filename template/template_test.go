package template

import (
	"testing"

	"github.com/pam-mount/volmount/volume"
	"github.com/stretchr/testify/assert"
)

func TestExpandBasic(t *testing.T) {
	vars := volume.VariableMap{"MNTPT": "/mnt/x", "USER": "alice"}
	e := New()
	got := e.Expand("mount %(MNTPT) as %(USER)", vars)
	assert.Equal(t, "mount /mnt/x as alice", got)
	assert.Empty(t, e.Errors())
}

func TestExpandMissingVariableIsEmpty(t *testing.T) {
	e := New()
	got := e.Expand("[%(NOPE)]", volume.VariableMap{})
	assert.Equal(t, "[]", got)
}

func TestExpandBeforeAffixOmittedWhenEmpty(t *testing.T) {
	e := New()
	got := e.Expand(`cipher%(before=" -c " CIPHER)`, volume.VariableMap{})
	assert.Equal(t, "cipher", got)

	got = e.Expand(`cipher%(before=" -c " CIPHER)`, volume.VariableMap{"CIPHER": "aes"})
	assert.Equal(t, "cipher -c aes", got)
}

func TestExpandAfterAffixOmittedWhenEmpty(t *testing.T) {
	e := New()
	got := e.Expand(`%(after="," OPTIONS)rest`, volume.VariableMap{})
	assert.Equal(t, "rest", got)

	got = e.Expand(`%(after="," OPTIONS)rest`, volume.VariableMap{"OPTIONS": "ro"})
	assert.Equal(t, "ro,rest", got)
}

func TestExpandUnterminatedPlaceholderRecordsError(t *testing.T) {
	e := New()
	got := e.Expand("oops %(MNTPT", volume.VariableMap{"MNTPT": "/x"})
	assert.Equal(t, "oops %(MNTPT", got)
	assert.NotEmpty(t, e.Errors())
}

func TestArglistBuild(t *testing.T) {
	vars := volume.VariableMap{"MNTPT": "/mnt/x", "VOLUME": "share"}
	argv := ArglistBuild([]string{"mount.cifs", "//%(VOLUME)", "%(MNTPT)"}, vars)
	assert.Equal(t, []string{"mount.cifs", "//share", "/mnt/x"}, argv)
}
