package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/localrivet/mcpcontent/auth"
)

// DirSink is a MediaSink writing files under a directory. Files stored on
// behalf of a principal go into a subdirectory named after its subject.
type DirSink struct {
	dir     string
	baseURL string
}

// NewDirSink creates a DirSink rooted at dir. Returned URLs are baseURL
// joined with the relative file path, or file:// URLs when baseURL is empty.
func NewDirSink(dir, baseURL string) *DirSink {
	return &DirSink{dir: dir, baseURL: baseURL}
}

// Store implements MediaSink.
func (s *DirSink) Store(_ context.Context, data []byte, _ string, metadata map[string]interface{}, principal auth.Principal) (string, error) {
	name, _ := metadata["name"].(string)
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	rel := name
	if subject := auth.SubjectOf(principal); subject != "" {
		rel = filepath.Join(safeSegment(subject), name)
	}
	path := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	if s.baseURL != "" {
		return strings.TrimSuffix(s.baseURL, "/") + "/" + filepath.ToSlash(rel), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimLeft(s, "."))
}

// JSONEventSink writes each event as one JSON line.
type JSONEventSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEventSink creates an EventSink writing to w.
func NewJSONEventSink(w io.Writer) *JSONEventSink {
	return &JSONEventSink{enc: json.NewEncoder(w)}
}

// Emit implements EventSink.
func (s *JSONEventSink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(event)
}

var (
	_ MediaSink = (*DirSink)(nil)
	_ EventSink = (*JSONEventSink)(nil)
)
