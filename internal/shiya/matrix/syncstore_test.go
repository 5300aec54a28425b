package matrix

import (
	"context"
	"os"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/shiya-bot/shiya/internal/shiya/store"
)

func newTestSyncStore(t *testing.T) *DBSyncStore {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "shiya-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return newDBSyncStore(s.DB())
}

func TestSyncStore_NextBatch(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()
	uid := id.UserID("@shiya:example.org")

	tok, err := ss.LoadNextBatch(ctx, uid)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if tok != "" {
		t.Errorf("first run should have no token, got %q", tok)
	}

	if err := ss.SaveNextBatch(ctx, uid, "s123_456"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := ss.SaveNextBatch(ctx, uid, "s123_789"); err != nil {
		t.Fatalf("SaveNextBatch overwrite: %v", err)
	}

	tok, err = ss.LoadNextBatch(ctx, uid)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if tok != "s123_789" {
		t.Errorf("token: got %q, want %q", tok, "s123_789")
	}
}

func TestSyncStore_FilterID(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()
	uid := id.UserID("@shiya:example.org")

	if err := ss.SaveFilterID(ctx, uid, "filter-1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	got, err := ss.LoadFilterID(ctx, uid)
	if err != nil {
		t.Fatalf("LoadFilterID: %v", err)
	}
	if got != "filter-1" {
		t.Errorf("filter ID: got %q", got)
	}

	// Keys are independent per user.
	other, err := ss.LoadFilterID(ctx, id.UserID("@other:example.org"))
	if err != nil {
		t.Fatalf("LoadFilterID other: %v", err)
	}
	if other != "" {
		t.Errorf("other user should have no filter ID, got %q", other)
	}
}

func TestLocalpart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@alice:example.org", "alice"},
		{"@alice:example.org:8448", "alice"},
		{"alice", "alice"},
	}
	for _, tc := range tests {
		if got := localpart(tc.in); got != tc.want {
			t.Errorf("localpart(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
