package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// reservedStems holds every stem handed out in this process so concurrent runs
// sharing an output directory never pick the same name.
var (
	reservedMu    sync.Mutex
	reservedStems = make(map[string]struct{})
)

// Workspace is the output directory of one run. Strategies get distinct candidate
// names from it; when the run ends every candidate except the winner is removed.
type Workspace struct {
	dir   string
	now   func() time.Time
	mu    sync.Mutex
	stems []string
}

// NewWorkspace creates the output directory if needed
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Workspace{dir: dir, now: time.Now}, nil
}

// Dir returns the output directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Reserve returns an unused path stem of the form <dir>/video_<unix>[_suffix].
// A numeric suffix is appended when the name is taken.
func (w *Workspace) Reserve(suffix string) (string, error) {
	base := fmt.Sprintf("video_%d", w.now().Unix())
	if suffix != "" {
		base += "_" + suffix
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list output directory: %w", err)
	}

	reservedMu.Lock()
	defer reservedMu.Unlock()

	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		stem := filepath.Join(w.dir, name)
		if _, taken := reservedStems[stem]; taken {
			continue
		}
		if stemInUse(entries, name) {
			continue
		}
		reservedStems[stem] = struct{}{}

		w.mu.Lock()
		w.stems = append(w.stems, stem)
		w.mu.Unlock()
		return stem, nil
	}
	return "", fmt.Errorf("no free file name for %s", base)
}

// Create reserves a stem and exclusively creates <stem>.<ext>
func (w *Workspace) Create(suffix, ext string) (*os.File, error) {
	stem, err := w.Reserve(suffix)
	if err != nil {
		return nil, err
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	f, err := os.OpenFile(stem+"."+ext, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// WriteFile stores body under a fresh name and returns the saved file
func (w *Workspace) WriteFile(suffix, ext string, body []byte) (*SavedFile, error) {
	f, err := w.Create(suffix, ext)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close output file: %w", err)
	}
	return w.Finalize(path)
}

// Discard removes every file belonging to stem (including tool leftovers such as
// <stem>.part). path may be the stem itself or any file named after it.
func (w *Workspace) Discard(path string) {
	name := stemName(filepath.Base(path))
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == name || strings.HasPrefix(e.Name(), name+".") {
			os.Remove(filepath.Join(w.dir, e.Name()))
		}
	}
}

// Close removes every file produced through this workspace except keep and
// releases the reserved names. keep may be empty.
func (w *Workspace) Close(keep string) {
	w.mu.Lock()
	stems := w.stems
	w.stems = nil
	w.mu.Unlock()

	keepStem := ""
	if keep != "" {
		keepStem = filepath.Join(filepath.Dir(keep), stemName(filepath.Base(keep)))
	}

	for _, stem := range stems {
		if stem == keepStem {
			w.discardExcept(stem, keep)
		} else {
			w.Discard(stem)
		}
	}

	reservedMu.Lock()
	for _, stem := range stems {
		delete(reservedStems, stem)
	}
	reservedMu.Unlock()
}

func (w *Workspace) discardExcept(stem, keep string) {
	name := filepath.Base(stem)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		p := filepath.Join(w.dir, e.Name())
		if e.IsDir() || p == keep {
			continue
		}
		if strings.HasPrefix(e.Name(), name+".") {
			os.Remove(p)
		}
	}
}

// Finalize stats, hashes and sniffs a finished file
func (w *Workspace) Finalize(path string) (*SavedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open saved file: %w", err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to sniff saved file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("failed to hash saved file: %w", err)
	}

	return &SavedFile{
		Path:             path,
		ByteSize:         n,
		ContentSignature: hex.EncodeToString(h.Sum(nil)),
		MimeType:         mtype.String(),
	}, nil
}

func stemInUse(entries []os.DirEntry, name string) bool {
	for _, e := range entries {
		if e.Name() == name || strings.HasPrefix(e.Name(), name+".") {
			return true
		}
	}
	return false
}

// stemName strips everything from the first dot: video_1_ytdlp.f137.mp4 -> video_1_ytdlp
func stemName(base string) string {
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}
