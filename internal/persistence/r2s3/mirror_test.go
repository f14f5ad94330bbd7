package r2s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tileforge.dev/internal/editor"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	auth    []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.objects[r.URL.Path] = string(body)
	b.types[r.URL.Path] = r.Header.Get("Content-Type")
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMirror_UploadsSavedFiles(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	defer srv.Close()

	dataDir := t.TempDir()
	doc := filepath.Join(dataDir, "level1.tmap.zst")
	rev := filepath.Join(dataDir, "archives", "level1", "rev_001", "level1.tmap.zst")
	writeFile(t, doc, "current")
	writeFile(t, rev, "previous")
	writeFile(t, filepath.Join(filepath.Dir(rev), "meta.json"), `{"revision":1}`)

	client, err := New(ClientConfig{
		Endpoint: srv.URL, Bucket: "maps", Region: "us-east-1",
		AccessKeyID: "AKID", SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := NewMirror(client, dataDir, "studio/", 2, 8, 0, nil)

	// Action entries and failed saves are ignored.
	_ = m.WriteEntry(editor.JournalEntry{Kind: editor.EntryAction, Doc: "level1", Applied: true})
	_ = m.WriteEntry(editor.JournalEntry{Kind: editor.EntrySave, Doc: "level1", Path: doc})
	_ = m.WriteEntry(editor.JournalEntry{Kind: editor.EntrySave, Doc: "level1", Applied: true, Path: doc, Archive: rev})
	m.Close()

	want := []string{
		"/maps/studio/archives/level1/rev_001/level1.tmap.zst",
		"/maps/studio/archives/level1/rev_001/meta.json",
		"/maps/studio/level1.tmap.zst",
	}
	if diff := cmp.Diff(want, bucket.keys()); diff != "" {
		t.Fatalf("uploaded keys (-want +got):\n%s", diff)
	}
	if got := bucket.objects["/maps/studio/level1.tmap.zst"]; got != "current" {
		t.Fatalf("body=%q", got)
	}
	if got := bucket.types["/maps/studio/archives/level1/rev_001/meta.json"]; got != "application/json" {
		t.Fatalf("content-type=%q", got)
	}
	for _, a := range bucket.auth {
		if !strings.HasPrefix(a, sigV4Algorithm+" Credential=AKID/") || !strings.Contains(a, "/us-east-1/s3/aws4_request") {
			t.Fatalf("authorization=%q", a)
		}
	}

	st := m.Stats()
	if st.UploadSuccessTotal != 3 || st.UploadFailTotal != 0 || st.EnqueuedTotal != 3 {
		t.Fatalf("stats=%+v", st)
	}
	if st.LastSuccessUnix == 0 || st.LastSuccessUnix > time.Now().Unix() {
		t.Fatalf("LastSuccessUnix=%d", st.LastSuccessUnix)
	}
}

func TestMirror_ObjectKeyRejectsOutsideDataDir(t *testing.T) {
	dataDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "x.json")
	writeFile(t, outside, "{}")

	m := &Mirror{dataDir: dataDir}
	if _, err := m.objectKey(outside); err == nil {
		t.Fatalf("expected error for path outside data dir")
	}
	if _, err := m.objectKey(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	inside := filepath.Join(dataDir, "a", "b.tmap.zst")
	writeFile(t, inside, "x")
	key, err := m.objectKey(inside)
	if err != nil || key != "a/b.tmap.zst" {
		t.Fatalf("key=%q err=%v", key, err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(ClientConfig{Endpoint: "example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
	c, err := New(ClientConfig{Endpoint: "example.com", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.endpoint != "https://example.com" || c.region != defaultRegion {
		t.Fatalf("endpoint=%q region=%q", c.endpoint, c.region)
	}
}
