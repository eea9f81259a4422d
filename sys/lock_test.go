package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Exclusive(t *testing.T) {
	testCases := []struct {
		name string
		fs   Locker
		path func(t *testing.T) string
	}{
		{name: "os", fs: OS{}, path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nested", "part-r-00000.avro") }},
		{name: "mem", fs: NewMem(), path: func(t *testing.T) string { return "/out/part-r-00000.avro" }},
		{name: "debug over mem", fs: NewDebug(NewMem(), nil), path: func(t *testing.T) string { return "part" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.name == "os" {
				restore := DefaultLockTimeout
				DefaultLockTimeout = 50 * time.Millisecond
				defer func() { DefaultLockTimeout = restore }()
			}
			name := tc.path(t)

			release, err := tc.fs.Lock(name)
			if err != nil && IsLockUnsupported(err) {
				t.Skip("OS file locking not supported on this platform")
			}
			require.NoError(t, err)

			_, err = tc.fs.Lock(name)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLocked)

			require.NoError(t, release())

			again, err := tc.fs.Lock(name)
			require.NoError(t, err)
			require.NoError(t, again())
		})
	}
}

func TestMemLock_ReleaseTwice(t *testing.T) {
	m := NewMem()
	release, err := m.Lock("a")
	require.NoError(t, err)
	require.NoError(t, release())

	other, err := m.Lock("a")
	require.NoError(t, err)
	require.NoError(t, release(), "stale release must not drop the new holder's lock")

	_, err = m.Lock("a")
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, other())
}

func TestDebugLock_WithoutLocker(t *testing.T) {
	d := NewDebug(noLockFS{NewMem()}, nil)
	release, err := d.Lock("x")
	require.NoError(t, err)
	_, err = d.Lock("x")
	require.NoError(t, err, "filesystems without locking never block")
	require.NoError(t, release())
}

// noLockFS hides Mem's Lock method.
type noLockFS struct{ m *Mem }

func (n noLockFS) Open(name string) (FileHandle, error)   { return n.m.Open(name) }
func (n noLockFS) Create(name string) (FileHandle, error) { return n.m.Create(name) }
func (n noLockFS) Stat(name string) (int64, error)        { return n.m.Stat(name) }

func TestLockPath(t *testing.T) {
	testCases := []struct {
		name string
		want string
	}{
		{name: filepath.Join("out", "part-r-00003.avro"), want: filepath.Join("out", ".part-r-00003.avro.lock")},
		{name: "part-r-00000.avro", want: ".part-r-00000.avro.lock"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LockPath(tc.name))
		})
	}
}

func TestOSLock_HiddenFromPartListing(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "part-r-00000.avro")

	release, err := OS{}.Lock(name)
	if err != nil && IsLockUnsupported(err) {
		t.Skip("OS file locking not supported on this platform")
	}
	require.NoError(t, err)
	defer release()

	_, err = os.Stat(LockPath(name))
	require.NoError(t, err, "lock file exists while held")

	parts, err := filepath.Glob(filepath.Join(dir, "part-r-*"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}
