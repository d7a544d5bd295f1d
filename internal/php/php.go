// Package php detects the installed PHP runtime and names its FPM service.
package php

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

// MinVersion is the oldest PHP line Laravel still runs on.
const MinVersion = "7.4"

// Packages is the PHP-FPM runtime plus the extensions a Laravel backend needs.
var Packages = []system.Package{
	{Name: "php-fpm"},
	{Name: "php-cli", Command: "php"},
	{Name: "php-mysql"},
	{Name: "php-mbstring"},
	{Name: "php-xml"},
	{Name: "php-bcmath"},
	{Name: "php-curl"},
	{Name: "php-zip"},
	{Name: "unzip", Command: "unzip"},
}

var versionLine = regexp.MustCompile(`(?m)^PHP (\d+\.\d+\.\d+)`)

// ParseVersion extracts MAJOR.MINOR from `php -v` output, e.g.
// "PHP 8.1.2-1ubuntu2.14 (cli) (built: ...)" -> "8.1".
func ParseVersion(out string) (string, error) {
	m := versionLine.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("unrecognised php -v output: %q", firstLine(out))
	}
	v := "v" + m[1]
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid PHP version %q", m[1])
	}
	if semver.Compare(v, "v"+MinVersion) < 0 {
		return "", fmt.Errorf("PHP %s is older than the supported minimum %s", m[1], MinVersion)
	}
	return strings.TrimPrefix(semver.MajorMinor(v), "v"), nil
}

// Detect runs `php -v` and parses its version.
func Detect(ctx context.Context, r system.Runner) (string, error) {
	out, err := r.Run(ctx, "php", "-v")
	if err != nil {
		return "", fmt.Errorf("run php -v: %w", err)
	}
	return ParseVersion(string(out))
}

// FPMUnit is the systemd unit Ubuntu ships for version v.
func FPMUnit(v string) string { return "php" + v + "-fpm" }

// FPMSocket is the unix socket the default pool listens on.
func FPMSocket(v string) string { return "/var/run/php/php" + v + "-fpm.sock" }

// Resolver caches the version once known, preferring a configured override.
type Resolver struct {
	Override string
	Runner   system.Runner

	detected string
}

// Version returns the override, a previously detected version, or detects now.
func (r *Resolver) Version(ctx context.Context) (string, error) {
	if r.Override != "" {
		return r.Override, nil
	}
	if r.detected != "" {
		return r.detected, nil
	}
	v, err := Detect(ctx, r.Runner)
	if err != nil {
		return "", err
	}
	r.detected = v
	return v, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
