package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/cache"
	"github.com/lucasdpb/satchel/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// shellServer serves the given assets; everything else is 404.
func shellServer(t *testing.T, assets map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureInstalledPrecachesShell(t *testing.T) {
	db := testDB(t)
	srv := shellServer(t, map[string]string{
		"/":        "<html>shell</html>",
		"/offline": "<html>offline</html>",
	})
	logger, _ := zap.NewDevelopment()

	ins := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v1", []string{"/", "/offline"})
	if err := ins.EnsureInstalled(context.Background()); err != nil {
		t.Fatal(err)
	}

	active, err := ins.ActiveVersion()
	if err != nil {
		t.Fatal(err)
	}
	if active != "v1" {
		t.Errorf("active version = %q, want v1", active)
	}

	entry, err := db.GetResponse(cache.StaticPartition("v1"), cache.Key(http.MethodGet, "/offline"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || string(entry.Body) != "<html>offline</html>" {
		t.Errorf("precached offline page = %v", entry)
	}
}

func TestEnsureInstalledIdempotent(t *testing.T) {
	db := testDB(t)
	srv := shellServer(t, map[string]string{"/": "shell"})
	logger, _ := zap.NewDevelopment()

	ins := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v1", []string{"/"})
	if err := ins.EnsureInstalled(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Second run with the same version must not refetch.
	srv.Close()
	if err := ins.EnsureInstalled(context.Background()); err != nil {
		t.Errorf("second EnsureInstalled() error = %v", err)
	}
}

func TestInstallFailsOnMissingAsset(t *testing.T) {
	db := testDB(t)
	srv := shellServer(t, map[string]string{"/": "shell"})
	logger, _ := zap.NewDevelopment()

	ins := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v1", []string{"/", "/missing.js"})
	err := ins.EnsureInstalled(context.Background())
	if err == nil {
		t.Fatal("install should fail when a shell asset is unreachable")
	}
	var perr *PrecacheError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PrecacheError, got %T: %v", err, err)
	}
	if perr.Asset != "/missing.js" {
		t.Errorf("failing asset = %q, want /missing.js", perr.Asset)
	}

	// Nothing was activated and nothing persisted.
	active, err := ins.ActiveVersion()
	if err != nil {
		t.Fatal(err)
	}
	if active != "" {
		t.Errorf("active version = %q, want empty after failed install", active)
	}
	n, err := db.PartitionEntryCount(cache.StaticPartition("v1"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("partition has %d entries after failed install, want 0", n)
	}
}

// TestUpgradeKeepsPreviousVersionOnFailure covers the strict-precache
// guarantee: a failed upgrade leaves the old version fully active.
func TestUpgradeKeepsPreviousVersionOnFailure(t *testing.T) {
	db := testDB(t)
	srv := shellServer(t, map[string]string{"/": "shell v1"})
	logger, _ := zap.NewDevelopment()

	v1 := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v1", []string{"/"})
	if err := v1.EnsureInstalled(context.Background()); err != nil {
		t.Fatal(err)
	}

	v2 := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v2", []string{"/", "/new-only.js"})
	if err := v2.EnsureInstalled(context.Background()); err == nil {
		t.Fatal("v2 install should fail")
	}

	active, err := v1.ActiveVersion()
	if err != nil {
		t.Fatal(err)
	}
	if active != "v1" {
		t.Errorf("active version = %q, want v1 retained", active)
	}
	entry, err := db.GetResponse(cache.StaticPartition("v1"), cache.Key(http.MethodGet, "/"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || string(entry.Body) != "shell v1" {
		t.Errorf("v1 shell lost after failed upgrade: %v", entry)
	}
}

func TestUpgradeRotatesOldPartitions(t *testing.T) {
	db := testDB(t)
	srv := shellServer(t, map[string]string{"/": "shell"})
	logger, _ := zap.NewDevelopment()

	v1 := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v1", []string{"/"})
	if err := v1.EnsureInstalled(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Dynamic data accumulated under v1.
	if err := db.PutResponse(&store.CachedResponse{
		Partition: cache.DynamicPartition("v1"),
		CacheKey:  "GET /api/x", URL: "/api/x", Status: 200, Body: []byte("x"),
	}); err != nil {
		t.Fatal(err)
	}

	v2 := NewInstaller(db, nil, bus.New(), logger, srv.URL, "v2", []string{"/"})
	if err := v2.EnsureInstalled(context.Background()); err != nil {
		t.Fatal(err)
	}

	parts, err := db.Partitions()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range parts {
		if p != cache.StaticPartition("v2") && p != cache.DynamicPartition("v2") {
			t.Errorf("stale partition %q survived activation", p)
		}
	}
}
