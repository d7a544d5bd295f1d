package nginx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SiteStore, string) {
	t.Helper()
	base := t.TempDir()
	fs := afero.NewBasePathFs(afero.NewOsFs(), base)
	return NewSiteStore(fs, "/etc/nginx/sites-available", "/etc/nginx/sites-enabled"), base
}

func TestSiteStore_Write(t *testing.T) {
	s, base := newTestStore(t)

	changed, err := s.Write("example.com", []byte("server {}\n"))
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(filepath.Join(base, "etc/nginx/sites-available/example.com"))
	require.NoError(t, err)
	assert.Equal(t, "server {}\n", string(data))

	changed, err = s.Write("example.com", []byte("server {}\n"))
	require.NoError(t, err)
	assert.False(t, changed, "identical content should not count as a change")

	changed, err = s.Write("example.com", []byte("server { listen 80; }\n"))
	require.NoError(t, err)
	assert.True(t, changed)
	cur, err := s.Current("example.com")
	require.NoError(t, err)
	assert.Equal(t, "server { listen 80; }\n", string(cur))
}

func TestSiteStore_Matches(t *testing.T) {
	s, _ := newTestStore(t)
	assert.False(t, s.Matches("example.com", []byte("x")), "missing file never matches")
	_, err := s.Write("example.com", []byte("x"))
	require.NoError(t, err)
	assert.True(t, s.Matches("example.com", []byte("x")))
	assert.False(t, s.Matches("example.com", []byte("y")))
}

func TestSiteStore_Enable(t *testing.T) {
	s, base := newTestStore(t)

	assert.Error(t, s.Enable("example.com"), "cannot enable a site that was never written")

	_, err := s.Write("example.com", []byte("server {}\n"))
	require.NoError(t, err)
	assert.False(t, s.IsEnabled("example.com"))

	require.NoError(t, s.Enable("example.com"))
	assert.True(t, s.IsEnabled("example.com"))

	fi, err := os.Lstat(filepath.Join(base, "etc/nginx/sites-enabled/example.com"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	require.NoError(t, s.Enable("example.com"), "enabling twice is a no-op")
	assert.True(t, s.IsEnabled("example.com"))
}

func TestSiteStore_EnableReplacesStaleEntry(t *testing.T) {
	s, base := newTestStore(t)
	_, err := s.Write("example.com", []byte("server {}\n"))
	require.NoError(t, err)

	enabled := filepath.Join(base, "etc/nginx/sites-enabled")
	require.NoError(t, os.MkdirAll(enabled, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(enabled, "example.com"), []byte("old copy"), 0o644))
	assert.False(t, s.IsEnabled("example.com"), "a plain file is not a proper link")

	require.NoError(t, s.Enable("example.com"))
	assert.True(t, s.IsEnabled("example.com"))
}

func TestSiteStore_DisableDefault(t *testing.T) {
	s, base := newTestStore(t)
	avail := filepath.Join(base, "etc/nginx/sites-available")
	enabled := filepath.Join(base, "etc/nginx/sites-enabled")
	require.NoError(t, os.MkdirAll(avail, 0o755))
	require.NoError(t, os.MkdirAll(enabled, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(avail, "default"), []byte("server {}"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(avail, "default"), filepath.Join(enabled, "default")))

	assert.True(t, s.DefaultEnabled())
	require.NoError(t, s.DisableDefault())
	assert.False(t, s.DefaultEnabled())

	_, err := os.Stat(filepath.Join(avail, "default"))
	assert.NoError(t, err, "sites-available/default must be kept")

	require.NoError(t, s.DisableDefault(), "disabling twice is a no-op")
}

func TestSiteStore_DisableDefaultDanglingLink(t *testing.T) {
	s, base := newTestStore(t)
	enabled := filepath.Join(base, "etc/nginx/sites-enabled")
	require.NoError(t, os.MkdirAll(enabled, 0o755))
	require.NoError(t, os.Symlink("/nonexistent/default", filepath.Join(enabled, "default")))

	assert.True(t, s.DefaultEnabled())
	require.NoError(t, s.DisableDefault())
	assert.False(t, s.DefaultEnabled())
}

func TestSiteStore_NoSymlinkSupport(t *testing.T) {
	s := NewSiteStore(afero.NewMemMapFs(), "/a", "/e")
	_, err := s.Write("example.com", []byte("x"))
	require.NoError(t, err)
	assert.Error(t, s.Enable("example.com"))
	assert.False(t, s.IsEnabled("example.com"))
}
