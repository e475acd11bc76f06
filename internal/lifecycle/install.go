package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/cache"
	"github.com/lucasdpb/satchel/internal/store"
	"go.uber.org/zap"
)

// PrecacheError reports a shell asset that could not be fetched at
// install time. The install fails entirely; the previous version, if
// any, stays active until a successful install completes.
type PrecacheError struct {
	Asset string
	Err   error
}

func (e *PrecacheError) Error() string {
	return fmt.Sprintf("precache %s: %v", e.Asset, e.Err)
}

func (e *PrecacheError) Unwrap() error { return e.Err }

const metaActiveVersion = "active_version"

// Installer precaches the application shell and rotates cache partitions
// when a new version activates.
type Installer struct {
	db      *store.DB
	client  *http.Client
	bus     *bus.Bus
	logger  *zap.Logger
	baseURL string
	version string
	assets  []string
}

// NewInstaller creates an installer for the given cache version. client
// must reach the network directly, not through the cache engine.
func NewInstaller(db *store.DB, client *http.Client, b *bus.Bus, logger *zap.Logger, baseURL, version string, assets []string) *Installer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Installer{
		db:      db,
		client:  client,
		bus:     b,
		logger:  logger,
		baseURL: baseURL,
		version: version,
		assets:  assets,
	}
}

// ActiveVersion returns the currently activated cache version, or "".
func (ins *Installer) ActiveVersion() (string, error) {
	return ins.db.GetMeta(metaActiveVersion)
}

// EnsureInstalled installs and activates the configured version unless it
// is already active. Install is strict: every shell asset must be fetched
// successfully before anything is persisted, and a single failure aborts
// with PrecacheError. Activation records the new version and rotates away
// every partition that does not belong to it.
func (ins *Installer) EnsureInstalled(ctx context.Context) error {
	active, err := ins.db.GetMeta(metaActiveVersion)
	if err != nil {
		return err
	}
	if active == ins.version {
		ins.logger.Info("cache version already active", zap.String("version", ins.version))
		return nil
	}

	ins.logger.Info("installing cache version",
		zap.String("version", ins.version),
		zap.String("previous", active),
		zap.Int("assets", len(ins.assets)))

	// Fetch the whole shell before persisting anything.
	snapshots := make([]*store.CachedResponse, 0, len(ins.assets))
	for _, asset := range ins.assets {
		snap, err := ins.fetchAsset(ctx, asset)
		if err != nil {
			return &PrecacheError{Asset: asset, Err: err}
		}
		snapshots = append(snapshots, snap)
	}

	partition := cache.StaticPartition(ins.version)
	for _, snap := range snapshots {
		snap.Partition = partition
		if err := ins.db.PutResponse(snap); err != nil {
			return err
		}
	}
	ins.bus.Publish(bus.Event{
		Kind:      "lifecycle.installed",
		Timestamp: time.Now(),
		Payload:   map[string]string{"version": ins.version},
	})

	// Activate: record the version, then delete every other partition.
	if err := ins.db.SetMeta(metaActiveVersion, ins.version); err != nil {
		return err
	}
	keep := []string{cache.StaticPartition(ins.version), cache.DynamicPartition(ins.version)}
	if err := ins.db.DeletePartitionsExcept(keep); err != nil {
		return err
	}

	ins.logger.Info("cache version activated", zap.String("version", ins.version))
	ins.bus.Publish(bus.Event{
		Kind:      "lifecycle.activated",
		Timestamp: time.Now(),
		Payload:   map[string]string{"version": ins.version},
	})
	return nil
}

func (ins *Installer) fetchAsset(ctx context.Context, asset string) (*store.CachedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ins.baseURL+asset, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ins.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server answered %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &store.CachedResponse{
		CacheKey:   cache.Key(http.MethodGet, asset),
		URL:        asset,
		Status:     resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now().UnixMilli(),
	}, nil
}
