package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func decodeEntries(t *testing.T, body *bytes.Buffer) []Entry {
	t.Helper()
	var entries []Entry
	if err := json.Unmarshal(body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v (body: %s)", err, body.String())
	}
	return entries
}

func TestFilesRequiresAuth(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodGet, "/api/files?path=", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unauthenticated API error content type = %q, want JSON", ct)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("401 body is not JSON: %v", err)
	}
	if _, ok := payload["error"]; !ok {
		t.Fatalf("401 body missing error field: %s", rec.Body.String())
	}
}

func TestFilesListing(t *testing.T) {
	ta := newTestApp(t)
	// Interleave files and directories so the partition has work to do.
	ta.writeFile(t, "alpha.mp4", []byte("a"))
	ta.mkdir(t, "movies")
	ta.writeFile(t, "beta.txt", []byte("b"))
	ta.mkdir(t, "shows")
	ta.writeFile(t, "Clip.MKV", []byte("c"))
	ta.writeFile(t, ".hidden", []byte("x"))
	ta.mkdir(t, ".cache")

	cookie := ta.authedCookie(t)
	rec := ta.do(t, http.MethodGet, "/api/files?path=", cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	entries := decodeEntries(t, rec.Body)

	for _, e := range entries {
		if e.Name == ".hidden" || e.Name == ".cache" {
			t.Fatalf("hidden entry %q leaked into listing", e.Name)
		}
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5: %+v", len(entries), entries)
	}

	// Directories first, then files, each group in enumeration order.
	// os.ReadDir returns names sorted, so the expected order is fixed.
	wantNames := []string{"movies", "shows", "Clip.MKV", "alpha.mp4", "beta.txt"}
	for i, want := range wantNames {
		if entries[i].Name != want {
			t.Fatalf("entries[%d] = %q, want %q (full: %+v)", i, entries[i].Name, want, entries)
		}
	}

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	if !byName["movies"].IsDirectory || byName["movies"].IsVideo {
		t.Fatalf("movies misclassified: %+v", byName["movies"])
	}
	if !byName["alpha.mp4"].IsVideo || byName["alpha.mp4"].IsDirectory {
		t.Fatalf("alpha.mp4 misclassified: %+v", byName["alpha.mp4"])
	}
	if !byName["Clip.MKV"].IsVideo {
		t.Fatalf("video extension match must be case-insensitive: %+v", byName["Clip.MKV"])
	}
	if byName["beta.txt"].IsVideo {
		t.Fatalf("beta.txt misclassified as video")
	}
}

func TestFilesSubdirectoryPaths(t *testing.T) {
	ta := newTestApp(t)
	ta.writeFile(t, "movies/action/die.hard.mp4", []byte("v"))
	cookie := ta.authedCookie(t)

	rec := ta.do(t, http.MethodGet, "/api/files?path=movies%2Faction", cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	entries := decodeEntries(t, rec.Body)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Path != "movies/action/die.hard.mp4" {
		t.Fatalf("entry path = %q, want slash-separated relative path", entries[0].Path)
	}
}

func TestFilesMissingDirectory(t *testing.T) {
	ta := newTestApp(t)
	cookie := ta.authedCookie(t)
	rec := ta.do(t, http.MethodGet, "/api/files?path=nope", cookie, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFilesFileTargetIsNotFound(t *testing.T) {
	ta := newTestApp(t)
	ta.writeFile(t, "clip.mp4", []byte("v"))
	cookie := ta.authedCookie(t)
	rec := ta.do(t, http.MethodGet, "/api/files?path=clip.mp4", cookie, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("listing a file: status = %d, want 404", rec.Code)
	}
}

func TestFilesSymlinkEscapeDenied(t *testing.T) {
	ta := newTestApp(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(ta.root, "leak")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	cookie := ta.authedCookie(t)
	rec := ta.do(t, http.MethodGet, "/api/files?path=leak", cookie, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(outside)) {
		t.Fatalf("error response leaks the resolved path: %s", rec.Body.String())
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	ta := newTestApp(t)
	content := []byte("the entire file, byte for byte")
	ta.writeFile(t, "movies/readme.txt", content)
	cookie := ta.authedCookie(t)

	// The same relative path the listing reports must serve the bytes.
	rec := ta.do(t, http.MethodGet, "/api/files?path=movies", cookie, nil)
	entries := decodeEntries(t, rec.Body)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	rec = ta.do(t, http.MethodGet, "/api/download?path="+entries[0].Path, cookie, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Fatalf("downloaded bytes differ from file content")
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="readme.txt"` {
		t.Fatalf("Content-Disposition = %q", cd)
	}
}

func TestDownloadErrors(t *testing.T) {
	ta := newTestApp(t)
	ta.mkdir(t, "movies")
	cookie := ta.authedCookie(t)

	rec := ta.do(t, http.MethodGet, "/api/download?path=missing.txt", cookie, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file: status = %d, want 404", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/download?path=movies", cookie, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("directory: status = %d, want 404", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/download?path=x", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status = %d, want 401", rec.Code)
	}
}
