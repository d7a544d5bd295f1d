// Package composer downloads, verifies and runs the Composer installer.
package composer

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/exitcodes"
	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

const (
	DefaultInstallerURL = "https://getcomposer.org/installer"
	DefaultSignatureURL = "https://composer.github.io/installer.sig"
	DefaultInstallDir   = "/usr/local/bin"

	// Binary is the file name the installer writes into the install dir.
	Binary = "composer"
)

// ProgressFunc is called while the installer downloads. total is -1 when
// the server sent no Content-Length.
type ProgressFunc func(current, total int64)

// Options configures one installation.
type Options struct {
	InstallerURL string
	SignatureURL string
	InstallDir   string
	Args         []string     // extra installer flags, e.g. --quiet
	Progress     ProgressFunc // optional
}

// HTTPDoer interface for HTTP requests (allows mocking in tests).
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Installer fetches the installer script and runs it with php.
type Installer struct {
	HTTP   HTTPDoer
	Runner system.Runner
	Logger *slog.Logger
}

// New creates an installer with a default HTTP client.
func New(r system.Runner) *Installer {
	return NewWith(&http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}, r)
}

// NewWith creates an installer with a custom HTTP client (for testing).
func NewWith(h HTTPDoer, r system.Runner) *Installer {
	if h == nil {
		return New(r)
	}
	return &Installer{HTTP: h, Runner: r, Logger: slog.Default()}
}

// Installed reports whether composer is on PATH.
func (i *Installer) Installed() bool {
	_, err := i.Runner.LookPath(Binary)
	return err == nil
}

// Install downloads the installer, verifies it against the published
// SHA-384 signature and runs it. Nothing is executed unless the hash matches.
func (i *Installer) Install(ctx context.Context, opts Options) error {
	if opts.InstallerURL == "" {
		opts.InstallerURL = DefaultInstallerURL
	}
	if opts.SignatureURL == "" {
		opts.SignatureURL = DefaultSignatureURL
	}
	if opts.InstallDir == "" {
		opts.InstallDir = DefaultInstallDir
	}

	expected, err := i.fetchSignature(ctx, opts.SignatureURL)
	if err != nil {
		return err
	}

	tempDir, err := os.MkdirTemp("", "composer-setup-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	setup := filepath.Join(tempDir, "composer-setup.php")

	actual, err := i.download(ctx, opts.InstallerURL, setup, opts.Progress)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		os.Remove(setup)
		return exitcodes.Validationf("composer installer corrupt: expected sha384 %s, got %s", expected, actual)
	}
	i.logger().Info("composer installer verified", "sha384", actual)

	args := append([]string{setup, "--install-dir=" + opts.InstallDir, "--filename=" + Binary}, opts.Args...)
	if _, err := i.Runner.Run(ctx, "php", args...); err != nil {
		return fmt.Errorf("run composer installer: %w", err)
	}
	return nil
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}

func (i *Installer) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, exitcodes.Invalid("bad url", err)
	}
	resp, err := i.HTTP.Do(req)
	if err != nil {
		return nil, exitcodes.Network("fetch "+url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, exitcodes.Networkf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return resp, nil
}

// fetchSignature returns the hex digest published at url.
func (i *Installer) fetchSignature(ctx context.Context, url string) (string, error) {
	resp, err := i.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", exitcodes.Network("read signature", err)
	}
	return ParseSignature(string(body))
}

// ParseSignature extracts a SHA-384 hex digest from the signature body.
func ParseSignature(body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", exitcodes.Validationf("empty installer signature")
	}
	sig := fields[0]
	if len(sig) != sha512.Size384*2 {
		return "", exitcodes.Validationf("installer signature is not a sha384 digest: %q", sig)
	}
	if _, err := hex.DecodeString(sig); err != nil {
		return "", exitcodes.Validationf("installer signature is not hex: %q", sig)
	}
	return strings.ToLower(sig), nil
}

// download writes url to dest and returns the SHA-384 of what was written.
func (i *Installer) download(ctx context.Context, url, dest string, progress ProgressFunc) (string, error) {
	resp, err := i.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if progress != nil {
		reader = &progressReader{reader: resp.Body, total: resp.ContentLength, progress: progress}
	}

	h := sha512.New384()
	if _, err := io.Copy(io.MultiWriter(out, h), reader); err != nil {
		return "", exitcodes.Network("download installer", err)
	}
	if err := out.Sync(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressReader wraps a reader to report download progress.
type progressReader struct {
	reader   io.Reader
	total    int64
	current  int64
	progress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	pr.progress(pr.current, pr.total)
	return n, err
}
