// Package backup keeps tar.lz4 copies of site files before they are replaced.
package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
)

const (
	timeLayout = "20060102-150405"
	suffix     = ".tar.lz4"
)

var archiveName = regexp.MustCompile(`^(.+)-(\d{8}-\d{6})\.tar\.lz4$`)

// Archive describes one backup file.
type Archive struct {
	Path   string    `json:"path" yaml:"path"`
	Domain string    `json:"domain" yaml:"domain"`
	Time   time.Time `json:"time" yaml:"time"`
	Size   int64     `json:"size" yaml:"size"`
}

// Store writes and rotates archives in Dir.
type Store struct {
	Fs  afero.Fs
	Dir string
	Now func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{Fs: fs, Dir: dir, Now: time.Now}
}

// Save archives content as a single file entry named domain.
func (s *Store) Save(domain string, content []byte) (Archive, error) {
	if err := s.Fs.MkdirAll(s.Dir, 0o750); err != nil {
		return Archive{}, fmt.Errorf("create backup dir: %w", err)
	}
	now := s.Now()
	path := filepath.Join(s.Dir, domain+"-"+now.Format(timeLayout)+suffix)

	f, err := s.Fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return Archive{}, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	tw := tar.NewWriter(zw)
	hdr := &tar.Header{
		Name:    domain,
		Mode:    0o644,
		Size:    int64(len(content)),
		ModTime: now,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return Archive{}, fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return Archive{}, fmt.Errorf("write tar entry: %w", err)
	}
	if err := tw.Close(); err != nil {
		return Archive{}, err
	}
	if err := zw.Close(); err != nil {
		return Archive{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		return Archive{}, err
	}
	return Archive{Path: path, Domain: domain, Time: now.Truncate(time.Second), Size: fi.Size()}, nil
}

// List returns every archive in Dir, newest first. Unrelated files are ignored
// and a missing directory is an empty list.
func (s *Store) List() ([]Archive, error) {
	entries, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var out []Archive
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := archiveName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		ts, err := time.ParseInLocation(timeLayout, m[2], time.Local)
		if err != nil {
			continue
		}
		out = append(out, Archive{Path: filepath.Join(s.Dir, e.Name()), Domain: m[1], Time: ts, Size: e.Size()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

// Rotate keeps the newest keep archives per domain and removes the rest.
func (s *Store) Rotate(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	seen := map[string]int{}
	var removed []string
	for _, a := range all {
		seen[a.Domain]++
		if seen[a.Domain] <= keep {
			continue
		}
		if err := s.Fs.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("remove old backup %s: %w", a.Path, err)
		}
		removed = append(removed, a.Path)
	}
	return removed, nil
}

// Read returns the site file stored in the archive at path.
func (s *Store) Read(path string) ([]byte, error) {
	f, err := s.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tr := tar.NewReader(lz4.NewReader(f))
	if _, err := tr.Next(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return io.ReadAll(tr)
}
