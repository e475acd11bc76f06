package notify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/prefs"
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

type fakeViews struct {
	open    map[string]bool
	focused []string
	opened  []string
}

func (f *fakeViews) Focus(ctx context.Context, target string) (bool, error) {
	if f.open[target] {
		f.focused = append(f.focused, target)
		return true, nil
	}
	return false, nil
}

func (f *fakeViews) Open(ctx context.Context, target string) error {
	f.opened = append(f.opened, target)
	return nil
}

type fakePresenter struct {
	presented []*store.Notification
}

func (f *fakePresenter) Present(ctx context.Context, n *store.Notification, requireInteraction bool) error {
	f.presented = append(f.presented, n)
	return nil
}

func newTestDispatcher(t *testing.T, views ViewRegistry) *Dispatcher {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewDispatcher(testDB(t), bus.New(), logger, nil, views, nil)
}

func TestShowPersistsRecord(t *testing.T) {
	d := newTestDispatcher(t, nil)
	n, err := d.Show(context.Background(), Payload{Title: "T", Body: "B", URL: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	if n.NotifID == "" {
		t.Error("notification has no id")
	}

	got, err := d.db.GetNotification(n.NotifID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "T" || got.Body != "B" || got.Target != "/x" {
		t.Errorf("stored notification = %+v", got)
	}
	if got.State != store.NotifShown {
		t.Errorf("state = %q, want shown", got.State)
	}
	if got.Read {
		t.Error("new notification already read")
	}
}

func TestShowRawMalformedStillShows(t *testing.T) {
	d := newTestDispatcher(t, nil)
	n, err := d.ShowRaw(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != DefaultTitle {
		t.Errorf("title = %q, want default", n.Title)
	}
	if n.Body != "hello" {
		t.Errorf("body = %q, want raw text", n.Body)
	}
}

func TestShowTagReplacesPrevious(t *testing.T) {
	d := newTestDispatcher(t, nil)
	ctx := context.Background()

	first, err := d.Show(ctx, Payload{Title: "one", Tag: "dm-3"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Show(ctx, Payload{Title: "two", Tag: "dm-3"})
	if err != nil {
		t.Fatal(err)
	}

	old, err := d.db.GetNotification(first.NotifID)
	if err != nil {
		t.Fatal(err)
	}
	if old.State != store.NotifClosed {
		t.Errorf("superseded notification state = %q, want closed", old.State)
	}
	cur, err := d.db.NotificationByTag("dm-3")
	if err != nil {
		t.Fatal(err)
	}
	if cur == nil || cur.NotifID != second.NotifID {
		t.Errorf("tag lookup = %+v, want latest", cur)
	}
}

func TestInteractClickFocusesOpenView(t *testing.T) {
	views := &fakeViews{open: map[string]bool{"/groups/7": true}}
	d := newTestDispatcher(t, views)
	ctx := context.Background()

	n, err := d.Show(ctx, Payload{Title: "T", URL: "/groups/7"})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Interact(ctx, n.NotifID, "click"); err != nil {
		t.Fatal(err)
	}
	if len(views.focused) != 1 || views.focused[0] != "/groups/7" {
		t.Errorf("focused = %v, want [/groups/7]", views.focused)
	}
	if len(views.opened) != 0 {
		t.Errorf("opened = %v, want none when a view matched", views.opened)
	}

	got, _ := d.db.GetNotification(n.NotifID)
	if got.State != store.NotifClosed {
		t.Errorf("state after interaction = %q, want closed", got.State)
	}
}

func TestInteractClickOpensWhenNoViewMatches(t *testing.T) {
	views := &fakeViews{open: map[string]bool{}}
	d := newTestDispatcher(t, views)
	ctx := context.Background()

	n, err := d.Show(ctx, Payload{Title: "T", URL: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Interact(ctx, n.NotifID, "click"); err != nil {
		t.Fatal(err)
	}
	if len(views.opened) != 1 || views.opened[0] != "/x" {
		t.Errorf("opened = %v, want [/x]", views.opened)
	}
}

func TestInteractDismissDoesNotNavigate(t *testing.T) {
	views := &fakeViews{open: map[string]bool{"/x": true}}
	d := newTestDispatcher(t, views)
	ctx := context.Background()

	n, err := d.Show(ctx, Payload{Title: "T", URL: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Interact(ctx, n.NotifID, ActionDismiss); err != nil {
		t.Fatal(err)
	}
	if len(views.focused)+len(views.opened) != 0 {
		t.Error("dismiss must not touch views")
	}
	got, _ := d.db.GetNotification(n.NotifID)
	if got.State != store.NotifClosed {
		t.Errorf("state = %q, want closed", got.State)
	}
}

func TestInteractClosedIsNoOp(t *testing.T) {
	views := &fakeViews{open: map[string]bool{"/x": true}}
	d := newTestDispatcher(t, views)
	ctx := context.Background()

	n, err := d.Show(ctx, Payload{Title: "T", URL: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Interact(ctx, n.NotifID, ActionDismiss); err != nil {
		t.Fatal(err)
	}
	// Closed is terminal: a late click must do nothing.
	if err := d.Interact(ctx, n.NotifID, "click"); err != nil {
		t.Fatal(err)
	}
	if len(views.focused)+len(views.opened) != 0 {
		t.Error("interaction with a closed notification navigated")
	}
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	d := newTestDispatcher(t, nil)
	ctx := context.Background()

	a, _ := d.Show(ctx, Payload{Title: "a"})
	if _, err := d.Show(ctx, Payload{Title: "b"}); err != nil {
		t.Fatal(err)
	}

	n, err := d.UnreadCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	if err := d.MarkRead(a.NotifID); err != nil {
		t.Fatal(err)
	}
	n, _ = d.UnreadCount()
	if n != 1 {
		t.Errorf("unread after mark = %d, want 1", n)
	}

	unread, err := d.List(true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || unread[0].Title != "b" {
		t.Errorf("unread list = %+v", unread)
	}
}

func TestShowDeniedPermissionSkipsPresentation(t *testing.T) {
	p, err := prefs.Load(filepath.Join(t.TempDir(), "prefs.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetNotificationsEnabled(prefs.NotificationsDenied); err != nil {
		t.Fatal(err)
	}

	fp := &fakePresenter{}
	logger, _ := zap.NewDevelopment()
	d := NewDispatcher(testDB(t), bus.New(), logger, fp, nil, p)

	n, err := d.Show(context.Background(), Payload{Title: "hidden", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fp.presented) != 0 {
		t.Errorf("denied permission still presented %d notifications", len(fp.presented))
	}
	// The record itself lands regardless, so the unread list works.
	got, err := d.db.GetNotification(n.NotifID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.State != store.NotifShown {
		t.Errorf("stored notification = %+v", got)
	}

	if err := p.SetNotificationsEnabled(prefs.NotificationsGranted); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Show(context.Background(), Payload{Title: "visible", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if len(fp.presented) != 1 || fp.presented[0].Title != "visible" {
		t.Errorf("presented = %+v", fp.presented)
	}
}
