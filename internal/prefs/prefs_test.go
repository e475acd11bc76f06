package prefs

import (
	"path/filepath"
	"testing"
	"time"
)

func testPrefs(t *testing.T) *Prefs {
	t.Helper()
	p, err := Load(filepath.Join(t.TempDir(), "prefs.toml"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileDefaults(t *testing.T) {
	p := testPrefs(t)
	if got := p.NotificationsEnabled(); got != NotificationsDefault {
		t.Errorf("NotificationsEnabled() = %q, want %q", got, NotificationsDefault)
	}
	if !p.BannerDismissedAt().IsZero() {
		t.Error("fresh prefs already have a dismissal timestamp")
	}
	if !p.ShouldShowBanner(time.Now()) {
		t.Error("banner suppressed before any dismissal")
	}
}

func TestNotificationsEnabledRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetNotificationsEnabled(NotificationsGranted); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.NotificationsEnabled(); got != NotificationsGranted {
		t.Errorf("after reload = %q, want granted", got)
	}
}

func TestBannerCooldown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	dismissedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := p.DismissBanner(dismissedAt); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"immediately after", dismissedAt.Add(time.Minute), false},
		{"six days later", dismissedAt.Add(6 * 24 * time.Hour), false},
		{"just under seven days", dismissedAt.Add(BannerCooldown - time.Second), false},
		{"exactly seven days", dismissedAt.Add(BannerCooldown), true},
		{"eight days later", dismissedAt.Add(8 * 24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldShowBanner(tt.now); got != tt.want {
				t.Errorf("ShouldShowBanner(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestBannerCooldownSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dismissedAt := time.Now().UTC().Truncate(time.Second)
	if err := p.DismissBanner(dismissedAt); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.BannerDismissedAt(); !got.Equal(dismissedAt) {
		t.Errorf("BannerDismissedAt() = %s, want %s", got, dismissedAt)
	}
	if reloaded.ShouldShowBanner(dismissedAt.Add(time.Hour)) {
		t.Error("cooldown lost across reload")
	}
}
