package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"homeflix/internal/util"
)

// streamContentType is fixed for every supported extension; browsers
// sniff the actual container from the byte stream.
const streamContentType = "video/mp4"

var errBadRange = errors.New("unsatisfiable range")

// handleStream serves a file's bytes with HTTP range support so the
// browser video element can seek. The body is copied in chunks; the file
// is never buffered whole.
func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	if !a.enforceMethod(w, r, http.MethodGet) {
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	rel := util.NormalizeRelPath(strings.TrimPrefix(r.URL.Path, "/stream/"))
	abs, err := util.SafeJoin(a.rootAbs, rel)
	if err != nil {
		a.writeError(w, http.StatusForbidden, "access denied")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}
	size := info.Size()

	file, err := os.Open(abs)
	if err != nil {
		a.logger.Error("open failed", "path", rel, "error", err)
		a.writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	defer file.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", streamContentType)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if _, err := io.Copy(w, file); err != nil {
			// Client went away mid-stream; nothing to answer.
			a.logger.Debug("stream aborted", "path", rel, "error", err)
		}
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		a.writeError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
		return
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		a.logger.Error("seek failed", "path", rel, "error", err)
		a.writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.CopyN(w, file, length); err != nil {
		a.logger.Debug("range stream aborted", "path", rel, "error", err)
	}
}

// parseRange parses a single "bytes=<start>-<end?>" header against size.
// start is required; a missing end means size-1; an end past EOF is
// clamped. Multiple ranges, a start at or past EOF, an end before start
// and malformed syntax are all errBadRange.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, errBadRange
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok || startStr == "" {
		return 0, 0, errBadRange
	}
	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, errBadRange
	}
	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, errBadRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, nil
}
