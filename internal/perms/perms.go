// Package perms sets ownership and modes on the web roots.
package perms

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

const (
	DirMode      os.FileMode = 0o755
	FileMode     os.FileMode = 0o644
	WritableMode os.FileMode = 0o775
)

// writable lists the Laravel directories the web user must be able to write.
var writable = []string{"storage", filepath.Join("bootstrap", "cache")}

// Owner is a numeric uid/gid pair.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves user and group names to ids.
func LookupOwner(userName, groupName string) (Owner, error) {
	u, err := user.Lookup(userName)
	if err != nil {
		return Owner{}, fmt.Errorf("lookup user %q: %w", userName, err)
	}
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return Owner{}, fmt.Errorf("lookup group %q: %w", groupName, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Owner{}, fmt.Errorf("uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return Owner{}, fmt.Errorf("gid %q: %w", g.Gid, err)
	}
	return Owner{UID: uid, GID: gid}, nil
}

// Apply creates root if needed and recursively chowns it to owner. Symlinks
// are left untouched.
func Apply(fs afero.Fs, root string, owner Owner) error {
	if err := fs.MkdirAll(root, DirMode); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if err := fs.Chown(path, owner.UID, owner.GID); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		if err := fs.Chmod(path, modeFor(root, path, info.IsDir())); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
		return nil
	})
}

func modeFor(root, path string, dir bool) os.FileMode {
	if isWritable(root, path) {
		if dir {
			return WritableMode
		}
		return 0o664
	}
	if dir {
		return DirMode
	}
	return FileMode
}

func isWritable(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, w := range writable {
		if rel == w || strings.HasPrefix(rel, w+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// errFound stops the walk early.
var errFound = errors.New("found")

// Check returns the first path under root whose owner or mode differs from
// what Apply would set, or "" when the whole tree matches. A missing root is
// reported as root itself.
func Check(fs afero.Fs, root string, owner Owner) (string, error) {
	if _, err := fs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return root, nil
		}
		return "", err
	}
	var bad string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		st, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return fmt.Errorf("%s: ownership not available", path)
		}
		if int(st.Uid) != owner.UID || int(st.Gid) != owner.GID ||
			info.Mode().Perm() != modeFor(root, path, info.IsDir()) {
			bad = path
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return bad, nil
	}
	return "", err
}
