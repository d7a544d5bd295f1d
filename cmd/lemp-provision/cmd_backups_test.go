package main

import (
	"strings"
	"testing"
	"time"
)

func TestBackupsCore_ListAndPrune(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, configuredHost())
	cfg := testConfig()
	cfg.BackupKeep = 2
	d := env.deps(cfg)

	store := d.Provision.Backups
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		store.Now = func() time.Time { return ts }
		if _, err := store.Save("shop.example.org", []byte("server {}")); err != nil {
			t.Fatal(err)
		}
	}
	store.Now = func() time.Time { return base }
	if _, err := store.Save("other.example.org", []byte("server {}")); err != nil {
		t.Fatal(err)
	}

	if err := backupsCore(d, false, false); err != nil {
		t.Fatalf("backupsCore() error = %v", err)
	}
	out := env.out.String()
	if strings.Count(out, "shop.example.org-") != 4 {
		t.Errorf("expected 4 archives listed:\n%s", out)
	}
	if strings.Contains(out, "other.example.org") {
		t.Errorf("other domains listed without --all:\n%s", out)
	}

	env.out.Reset()
	if err := backupsCore(d, true, true); err != nil {
		t.Fatalf("backupsCore(prune) error = %v", err)
	}
	out = env.out.String()
	if strings.Count(out, "removed ") != 2 {
		t.Errorf("expected 2 removals:\n%s", out)
	}
	if !strings.Contains(out, "other.example.org") {
		t.Errorf("--all should list other domains:\n%s", out)
	}
	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("archives after prune = %d, want 3", len(list))
	}
}

func TestBackupsCore_Empty(t *testing.T) {
	withFlags(t)
	env := newTestEnv(t, configuredHost())
	if err := backupsCore(env.deps(testConfig()), false, false); err != nil {
		t.Fatalf("backupsCore() error = %v", err)
	}
	if !strings.Contains(env.out.String(), "No backups in /var/lib/lemp-provision/backups") {
		t.Errorf("output:\n%s", env.out.String())
	}
}
