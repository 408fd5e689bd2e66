package sharepoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/nikhilbhutani/docextract/internal/config"
)

type graphServer struct {
	*httptest.Server
	tokenRequests atomic.Int32
	patched       map[string]string
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	g := &graphServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenRequests.Add(1)
		r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("scope") != graphScope {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /drives/d1/root/children", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`{"value":[{"id":"i3","name":"c.pdf","file":{"mimeType":"application/pdf"}}]}`))
			return
		}
		next := g.URL + "/drives/d1/root/children?page=2"
		w.Write([]byte(`{"value":[{"id":"i1","name":"a.pdf","file":{"mimeType":"application/pdf"},"parentReference":{"driveId":"d1"}},
			{"id":"f1","name":"archive","folder":{"childCount":2}}],"@odata.nextLink":"` + next + `"}`))
	}))

	mux.HandleFunc("PATCH /drives/d1/items/i1/listItem/fields", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&g.patched)
		w.Write([]byte(`{}`))
	}))

	mux.HandleFunc("GET /drives/d1/items/i1", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"i1","name":"a.pdf","file":{"mimeType":"application/pdf"}}`))
	}))

	mux.HandleFunc("GET /drives/d1/items/i1/content", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func newTestClient(g *graphServer) *Client {
	return NewClient(config.SharePointConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		GraphBaseURL: g.URL,
		TokenURL:     g.URL + "/token",
		StatusField:  "Estado",
	})
}

func TestListChildrenFollowsNextLink(t *testing.T) {
	g := newGraphServer(t)
	c := newTestClient(g)

	items, err := c.ListChildren(context.Background(), "d1")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if !items[1].IsFolder() || items[0].IsFolder() {
		t.Fatal("folder detection is wrong")
	}
	if got := g.tokenRequests.Load(); got != 1 {
		t.Fatalf("token requested %d times, want 1", got)
	}
}

func TestUpdateProcessingStatus(t *testing.T) {
	g := newGraphServer(t)
	c := newTestClient(g)

	if err := c.UpdateProcessingStatus(context.Background(), "d1", "i1", StatusProcessed); err != nil {
		t.Fatalf("UpdateProcessingStatus: %v", err)
	}
	if g.patched["Estado"] != "Processed" {
		t.Fatalf("patched fields = %v", g.patched)
	}
}

func TestUpdateProcessingStatusReportsGraphError(t *testing.T) {
	g := newGraphServer(t)
	c := newTestClient(g)

	if err := c.UpdateProcessingStatus(context.Background(), "d1", "missing", StatusFailed); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestDownload(t *testing.T) {
	g := newGraphServer(t)
	c := newTestClient(g)

	f, err := c.Download(context.Background(), "d1", "i1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer f.Body.Close()

	body, _ := io.ReadAll(f.Body)
	if f.Name != "a.pdf" || f.ContentType != "application/pdf" || string(body) != "%PDF-1.7" {
		t.Fatalf("file = %+v body=%q", f, body)
	}
}

func TestTokenCacheRefreshesExpiredToken(t *testing.T) {
	calls := 0
	cache := &TokenCache{fetch: func(context.Context) (*oauth2.Token, error) {
		calls++
		expiry := time.Now().Add(time.Hour)
		if calls == 1 {
			expiry = time.Now().Add(-time.Minute)
		}
		return &oauth2.Token{AccessToken: "tok", Expiry: expiry}, nil
	}}

	for range 3 {
		if _, err := cache.GetValidToken(context.Background()); err != nil {
			t.Fatalf("GetValidToken: %v", err)
		}
	}
	// first token is already expired, the second one is reused
	if calls != 2 {
		t.Fatalf("fetched %d tokens, want 2", calls)
	}
}
