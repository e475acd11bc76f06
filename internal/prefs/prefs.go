// Package prefs holds the small per-profile preferences that live
// outside the transactional store: the notification permission string
// and the install-banner dismissal timestamp.
package prefs

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// BannerCooldown is how long a banner dismissal suppresses re-display.
const BannerCooldown = 7 * 24 * time.Hour

// Notification permission values, mirroring the platform permission
// states the frontend reports.
const (
	NotificationsDefault = "default"
	NotificationsGranted = "granted"
	NotificationsDenied  = "denied"
)

type filePrefs struct {
	NotificationsEnabled string `toml:"notifications_enabled"`
	BannerDismissedAt    string `toml:"banner_dismissed_at,omitempty"`
}

// Prefs is a loaded preferences file. Mutating methods persist
// immediately; the file is small and rewritten whole. Safe for
// concurrent use.
type Prefs struct {
	mu   sync.RWMutex
	path string
	data filePrefs
}

// Load reads the prefs file, returning defaults when it does not exist.
func Load(path string) (*Prefs, error) {
	p := &Prefs{
		path: path,
		data: filePrefs{NotificationsEnabled: NotificationsDefault},
	}
	if _, err := toml.DecodeFile(path, &p.data); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to load prefs: %w", err)
	}
	if p.data.NotificationsEnabled == "" {
		p.data.NotificationsEnabled = NotificationsDefault
	}
	return p, nil
}

func (p *Prefs) save() error {
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := toml.NewEncoder(f).Encode(p.data); err != nil {
		return fmt.Errorf("failed to encode prefs: %w", err)
	}
	return nil
}

// NotificationsEnabled returns the stored permission string.
func (p *Prefs) NotificationsEnabled() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.NotificationsEnabled
}

// SetNotificationsEnabled stores the permission string.
func (p *Prefs) SetNotificationsEnabled(v string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.NotificationsEnabled = v
	return p.save()
}

// BannerDismissedAt returns when the install banner was last dismissed,
// or the zero time if never.
func (p *Prefs) BannerDismissedAt() time.Time {
	p.mu.RLock()
	raw := p.data.BannerDismissedAt
	p.mu.RUnlock()
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DismissBanner records a dismissal at now, starting the cooldown.
func (p *Prefs) DismissBanner(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.BannerDismissedAt = now.UTC().Format(time.RFC3339)
	return p.save()
}

// ShouldShowBanner reports whether the install banner may be shown:
// true unless a dismissal happened within the cooldown window.
func (p *Prefs) ShouldShowBanner(now time.Time) bool {
	dismissed := p.BannerDismissedAt()
	if dismissed.IsZero() {
		return true
	}
	return now.Sub(dismissed) >= BannerCooldown
}
