package cmtab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempRegistry(t *testing.T) *Registry {
	return New(filepath.Join(t.TempDir(), "cmtab"))
}

func TestAppendThenLookupRoundTrip(t *testing.T) {
	r := tempRegistry(t)
	rec := Record{Mountpoint: "/mnt/a", Container: "/srv/img.bin", LoopDevice: "/dev/loop3", CryptoDevice: "/dev/mapper/x"}

	require.NoError(t, r.Append(rec))

	got, ok, err := r.Lookup(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestAppendThenRemoveThenLookupNotFound(t *testing.T) {
	r := tempRegistry(t)
	rec := Record{Mountpoint: "/mnt/a", Container: "/srv/img.bin"}
	require.NoError(t, r.Append(rec))

	removed, err := r.Remove(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := r.Lookup(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupReturnsLastMatch(t *testing.T) {
	r := tempRegistry(t)
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/a", Container: "/srv/first.bin"}))
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/a", Container: "/srv/second.bin"}))

	got, ok, err := r.Lookup(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/srv/second.bin", got.Container)
}

func TestRemovePreservesSubsequentRecordsInOrder(t *testing.T) {
	r := tempRegistry(t)
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/a", Container: "/srv/a.bin"}))
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/b", Container: "/srv/b.bin"}))
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/c", Container: "/srv/c.bin"}))

	removed, err := r.Remove(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	assert.True(t, removed)

	b, ok, err := r.Lookup(FieldMountpoint, "/mnt/b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/srv/b.bin", b.Container)

	c, ok, err := r.Lookup(FieldMountpoint, "/mnt/c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/srv/c.bin", c.Container)
}

func TestRemoveNoMatchReturnsFalse(t *testing.T) {
	r := tempRegistry(t)
	require.NoError(t, r.Append(Record{Mountpoint: "/mnt/a", Container: "/srv/a.bin"}))

	removed, err := r.Remove(FieldMountpoint, "/mnt/nope")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLookupOnMissingFileReturnsNotFound(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"))
	_, ok, err := r.Lookup(FieldMountpoint, "/mnt/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordEncodeEscapesFieldsAndAbsentIsDash(t *testing.T) {
	rec := Record{Mountpoint: "/mnt/with space", Container: "/srv/img.bin"}
	line := rec.encode()
	assert.Equal(t, "/mnt/with\\040space\t/srv/img.bin\t-\t-", line)

	decoded, ok := decodeRecord(line)
	require.True(t, ok)
	assert.Equal(t, rec, decoded)
}

func TestSmtabAddAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mtab")
	s := NewSmtab(path)

	require.NoError(t, s.Add(SmtabRecord{Device: "//srv/share", Mountpoint: "/mnt/s", FSType: "cifs", Options: "rw"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "//srv/share /mnt/s cifs rw 0 0\n", string(raw))

	require.NoError(t, s.Remove("/mnt/s"))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestSmtabUnsupportedPlatformReturnsNotSupported(t *testing.T) {
	s := NewSmtab("")

	err := s.Add(SmtabRecord{Mountpoint: "/mnt/s"})
	require.Error(t, err)

	require.NoError(t, s.Remove("/mnt/s"))
}
