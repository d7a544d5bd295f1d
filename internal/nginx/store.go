package nginx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// DefaultSite is the name of the site Ubuntu's nginx package enables.
const DefaultSite = "default"

// SiteStore manages files in sites-available and links in sites-enabled.
type SiteStore struct {
	Fs           afero.Fs
	AvailableDir string
	EnabledDir   string
}

// NewSiteStore returns a store over fs.
func NewSiteStore(fs afero.Fs, availableDir, enabledDir string) *SiteStore {
	return &SiteStore{Fs: fs, AvailableDir: availableDir, EnabledDir: enabledDir}
}

func (s *SiteStore) AvailablePath(name string) string { return filepath.Join(s.AvailableDir, name) }

func (s *SiteStore) EnabledPath(name string) string { return filepath.Join(s.EnabledDir, name) }

// Current returns the content of the available site, or os.ErrNotExist.
func (s *SiteStore) Current(name string) ([]byte, error) {
	return afero.ReadFile(s.Fs, s.AvailablePath(name))
}

// Matches reports whether the available site already holds content.
func (s *SiteStore) Matches(name string, content []byte) bool {
	cur, err := s.Current(name)
	if err != nil {
		return false
	}
	return xxhash.Sum64(cur) == xxhash.Sum64(content)
}

// Write stores content as the available site, overwriting any previous file.
// changed is false when the file already had identical content.
func (s *SiteStore) Write(name string, content []byte) (changed bool, err error) {
	if s.Matches(name, content) {
		return false, nil
	}
	if err := s.Fs.MkdirAll(s.AvailableDir, 0o755); err != nil {
		return false, err
	}
	if err := afero.WriteFile(s.Fs, s.AvailablePath(name), content, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", s.AvailablePath(name), err)
	}
	return true, nil
}

func (s *SiteStore) symlinker() (afero.Symlinker, error) {
	l, ok := s.Fs.(afero.Symlinker)
	if !ok {
		return nil, errors.New("filesystem does not support symlinks")
	}
	return l, nil
}

// IsEnabled reports whether the enabled entry is a symlink to the available file.
func (s *SiteStore) IsEnabled(name string) bool {
	l, err := s.symlinker()
	if err != nil {
		return false
	}
	fi, _, err := l.LstatIfPossible(s.EnabledPath(name))
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := s.Fs.Stat(s.EnabledPath(name))
	if err != nil {
		return false
	}
	avail, err := s.Fs.Stat(s.AvailablePath(name))
	if err != nil {
		return false
	}
	return os.SameFile(target, avail)
}

// Enable links the available site into sites-enabled, replacing whatever
// entry of that name is there.
func (s *SiteStore) Enable(name string) error {
	if s.IsEnabled(name) {
		return nil
	}
	if _, err := s.Fs.Stat(s.AvailablePath(name)); err != nil {
		return fmt.Errorf("enable %s: %w", name, err)
	}
	l, err := s.symlinker()
	if err != nil {
		return err
	}
	if err := s.Fs.MkdirAll(s.EnabledDir, 0o755); err != nil {
		return err
	}
	link := s.EnabledPath(name)
	if s.entryExists(link) {
		if err := s.Fs.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("replace %s: %w", link, err)
		}
	}
	if err := l.SymlinkIfPossible(s.AvailablePath(name), link); err != nil {
		return fmt.Errorf("link %s: %w", link, err)
	}
	return nil
}

func (s *SiteStore) entryExists(path string) bool {
	l, err := s.symlinker()
	if err != nil {
		return false
	}
	_, _, err = l.LstatIfPossible(path)
	return err == nil
}

// DefaultEnabled reports whether the stock default site is still active.
func (s *SiteStore) DefaultEnabled() bool {
	return s.entryExists(s.EnabledPath(DefaultSite))
}

// DisableDefault removes the default site from sites-enabled. The file in
// sites-available is left alone.
func (s *SiteStore) DisableDefault() error {
	if !s.DefaultEnabled() {
		return nil
	}
	if err := s.Fs.Remove(s.EnabledPath(DefaultSite)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("disable default site: %w", err)
	}
	return nil
}
