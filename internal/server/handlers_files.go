package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"homeflix/internal/util"
)

// videoExts is the fixed set of extensions the player treats as video.
var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
}

func isVideoName(name string) bool {
	return videoExts[strings.ToLower(path.Ext(name))]
}

// handleFiles lists the immediate children of the requested directory.
// Response is an ordered JSON array: directories first, then files, each
// group in filesystem enumeration order.
func (a *App) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !a.enforceMethod(w, r, http.MethodGet) {
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	rel := util.NormalizeRelPath(r.URL.Query().Get("path"))
	abs, err := util.SafeJoin(a.rootAbs, rel)
	if err != nil {
		a.writeError(w, http.StatusForbidden, "access denied")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}
	children, err := os.ReadDir(abs)
	if err != nil {
		a.logger.Error("read dir failed", "path", rel, "error", err)
		a.writeError(w, http.StatusInternalServerError, "read error")
		return
	}

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		name := child.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		entries = append(entries, Entry{
			Name:        name,
			IsDirectory: child.IsDir(),
			IsVideo:     isVideoName(name),
			Path:        path.Join(rel, name),
		})
	}
	// Stable partition, not a full sort: ties keep first-seen order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].IsDirectory && !entries[j].IsDirectory
	})
	a.writeJSON(w, http.StatusOK, entries)
}

// handleDownload serves a single file as an attachment.
func (a *App) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !a.enforceMethod(w, r, http.MethodGet) {
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	rel := util.NormalizeRelPath(r.URL.Query().Get("path"))
	abs, err := util.SafeJoin(a.rootAbs, rel)
	if err != nil {
		a.writeError(w, http.StatusForbidden, "access denied")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.writeError(w, http.StatusNotFound, "not found")
			return
		}
		a.logger.Error("stat failed", "path", rel, "error", err)
		a.writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	if info.IsDir() {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeFile(w, r, abs)
}
