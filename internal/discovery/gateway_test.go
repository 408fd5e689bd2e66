package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nikhilbhutani/docextract/internal/document"
	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/sharepoint"
)

type fakeLister struct {
	items []sharepoint.DriveItem
	err   error
}

func (l *fakeLister) ListChildren(context.Context, string) ([]sharepoint.DriveItem, error) {
	return l.items, l.err
}

// recordingStarter creates the document like the real pipeline would, so a
// later reconcile sees it as known.
type recordingStarter struct {
	repo     *document.Repository
	fail     map[string]bool
	mu       sync.Mutex
	started  []models.SourceFile
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *recordingStarter) Start(ctx context.Context, file models.SourceFile) (*models.Document, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.started = append(s.started, file)
	s.mu.Unlock()

	doc, err := s.repo.UpsertStartProcessing(ctx, file)
	if err != nil {
		return nil, err
	}
	if s.fail[file.ExternalID.ItemID] {
		return nil, errors.New("ocr failed")
	}
	return doc, nil
}

func pdf(id string) sharepoint.DriveItem {
	item := sharepoint.DriveItem{ID: id, Name: id + ".pdf", Size: 10, WebURL: "https://example/" + id}
	item.File = &sharepoint.FileFacet{MimeType: "application/pdf"}
	return item
}

func folder(id string) sharepoint.DriveItem {
	item := sharepoint.DriveItem{ID: id, Name: id}
	item.Folder = &sharepoint.FolderFacet{ChildCount: 1}
	return item
}

func newTestGateway(t *testing.T, items []sharepoint.DriveItem, opts Options) (*Gateway, *recordingStarter) {
	t.Helper()
	repo := document.NewRepository(document.NewMemoryStore(), nil)
	starter := &recordingStarter{repo: repo, fail: map[string]bool{}}
	return NewGateway(&fakeLister{items: items}, repo, starter, opts), starter
}

func TestParseDriveID(t *testing.T) {
	cases := map[string]string{
		"/drives/b!abc/root":      "b!abc",
		"drives/b!abc/root":       "b!abc",
		"drives/d1/items/i1":      "d1",
		"/drives/d1/root/extra":   "",
		"/sites/s1/drives/d/root": "",
		"":                        "",
	}
	for resource, want := range cases {
		got, ok := ParseDriveID(resource)
		if got != want || ok != (want != "") {
			t.Errorf("ParseDriveID(%q) = %q, %v; want %q", resource, got, ok, want)
		}
	}
}

func TestFilterNotifications(t *testing.T) {
	g, _ := newTestGateway(t, nil, Options{ClientState: "secret"})

	drives := g.FilterNotifications([]Notification{
		{Resource: "/drives/d1/root", ClientState: "secret"},
		{Resource: "/drives/d1/root", ClientState: "secret"},
		{Resource: "/drives/d2/root", ClientState: "wrong"},
		{Resource: "/drives/d3/root"},
		{Resource: "/users/u1", ClientState: "secret"},
		{Resource: "drives/d4/items/i1", ClientState: "secret"},
	})
	if len(drives) != 2 || drives[0] != "d1" || drives[1] != "d4" {
		t.Fatalf("drives = %v, want [d1 d4]", drives)
	}

	open, _ := newTestGateway(t, nil, Options{})
	if got := open.FilterNotifications([]Notification{{Resource: "/drives/d2/root", ClientState: "anything"}}); len(got) != 1 {
		t.Fatalf("without a configured client state every notification passes, got %v", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	items := []sharepoint.DriveItem{pdf("a"), folder("archive"), pdf("b"), pdf("c")}
	g, starter := newTestGateway(t, items, Options{Concurrency: 2})
	ctx := context.Background()

	stats, err := g.Reconcile(ctx, "inputs")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Started != 3 || stats.Skipped != 1 || stats.Known != 0 {
		t.Fatalf("first pass stats = %+v", stats)
	}

	stats, err = g.Reconcile(ctx, "inputs")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Started != 0 || stats.Known != 3 {
		t.Fatalf("second pass stats = %+v", stats)
	}
	if len(starter.started) != 3 {
		t.Fatalf("Start called %d times over two passes, want 3", len(starter.started))
	}
}

func TestReconcileBoundsConcurrency(t *testing.T) {
	var items []sharepoint.DriveItem
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		items = append(items, pdf(id))
	}
	g, starter := newTestGateway(t, items, Options{Concurrency: 3})

	if _, err := g.Reconcile(context.Background(), "inputs"); err != nil {
		t.Fatal(err)
	}
	if peak := starter.peak.Load(); peak > 3 {
		t.Fatalf("peak in-flight starts = %d, want <= 3", peak)
	}
}

func TestReconcileCountsPipelineFailures(t *testing.T) {
	g, starter := newTestGateway(t, []sharepoint.DriveItem{pdf("a"), pdf("b")}, Options{})
	starter.fail["a"] = true

	stats, err := g.Reconcile(context.Background(), "inputs")
	if err != nil {
		t.Fatalf("pipeline failures must not fail the reconcile: %v", err)
	}
	if stats.Started != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestReconcileListError(t *testing.T) {
	repo := document.NewRepository(document.NewMemoryStore(), nil)
	g := NewGateway(&fakeLister{err: errors.New("graph down")}, repo, &recordingStarter{repo: repo}, Options{})
	if _, err := g.Reconcile(context.Background(), "inputs"); err == nil {
		t.Fatal("expected listing error")
	}
}

func TestSourceFileMapping(t *testing.T) {
	item := pdf("a")
	item.ParentReference.DriveID = "real-drive"
	item.ParentReference.SiteID = "site"

	file := sourceFile("inputs", item)
	if file.ExternalID != (models.ExternalID{DriveID: "real-drive", ItemID: "a"}) {
		t.Fatalf("external id = %+v", file.ExternalID)
	}
	if *file.SiteID != "site" || *file.FileSize != 10 || *file.ContentType != "application/pdf" {
		t.Fatalf("file = %+v", file)
	}

	bare := sharepoint.DriveItem{ID: "b", Name: "b"}
	bare.File = &sharepoint.FileFacet{}
	if got := sourceFile("inputs", bare); *got.ContentType != defaultContentType || got.ExternalID.DriveID != "inputs" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}
