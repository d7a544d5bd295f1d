package system

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	minDiskFree = 2 << 30 // 2 GiB
	minMemTotal = 1 << 30 // 1 GiB
)

// Facts describes the host before anything is changed.
type Facts struct {
	Root            bool   `json:"root" yaml:"root"`
	Hostname        string `json:"hostname" yaml:"hostname"`
	Platform        string `json:"platform" yaml:"platform"`
	PlatformVersion string `json:"platform_version" yaml:"platform_version"`
	DiskFree        uint64 `json:"disk_free" yaml:"disk_free"`
	MemTotal        uint64 `json:"mem_total" yaml:"mem_total"`
}

// Finding is one preflight verdict: Status is "pass", "warn" or "fail".
type Finding struct {
	Name    string `json:"name" yaml:"name"`
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
}

// Gather collects Facts using gopsutil.
func Gather(ctx context.Context) (Facts, error) {
	f := Facts{Root: os.Geteuid() == 0}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return f, fmt.Errorf("host info: %w", err)
	}
	f.Hostname = info.Hostname
	f.Platform = info.Platform
	f.PlatformVersion = info.PlatformVersion

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		f.DiskFree = usage.Free
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		f.MemTotal = vm.Total
	}
	return f, nil
}

// Evaluate turns facts into findings. Root and Ubuntu are hard requirements,
// disk and memory are advisory.
func (f Facts) Evaluate() []Finding {
	var out []Finding

	if f.Root {
		out = append(out, Finding{"Privileges", "pass", "running as root"})
	} else {
		out = append(out, Finding{"Privileges", "fail", "must run as root (try sudo)"})
	}

	if strings.EqualFold(f.Platform, "ubuntu") {
		out = append(out, Finding{"Platform", "pass", fmt.Sprintf("Ubuntu %s", f.PlatformVersion)})
	} else {
		p := f.Platform
		if p == "" {
			p = "unknown"
		}
		out = append(out, Finding{"Platform", "fail", fmt.Sprintf("unsupported platform %q, Ubuntu required", p)})
	}

	switch {
	case f.DiskFree == 0:
		out = append(out, Finding{"Disk", "warn", "free space on / unknown"})
	case f.DiskFree < minDiskFree:
		out = append(out, Finding{"Disk", "warn", fmt.Sprintf("only %s free on /", humanBytes(f.DiskFree))})
	default:
		out = append(out, Finding{"Disk", "pass", fmt.Sprintf("%s free on /", humanBytes(f.DiskFree))})
	}

	switch {
	case f.MemTotal == 0:
		out = append(out, Finding{"Memory", "warn", "total memory unknown"})
	case f.MemTotal < minMemTotal:
		out = append(out, Finding{"Memory", "warn", fmt.Sprintf("%s total, MySQL may struggle", humanBytes(f.MemTotal))})
	default:
		out = append(out, Finding{"Memory", "pass", fmt.Sprintf("%s total", humanBytes(f.MemTotal))})
	}
	return out
}

// Blocking returns the first failing finding, if any.
func Blocking(findings []Finding) (Finding, bool) {
	for _, f := range findings {
		if f.Status == "fail" {
			return f, true
		}
	}
	return Finding{}, false
}

func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
