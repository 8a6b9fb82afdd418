package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/wire"
)

var (
	ErrNoBookmark  = errors.New("store: no such bookmark")
	ErrBadBookmark = errors.New("store: invalid bookmark")
)

// Bookmarks is the bookmark tree, kept as a flat list in a JSON file.
// Children point at their folder through ParentID.
type Bookmarks struct {
	path string
	now  func() time.Time

	mu    sync.RWMutex
	items []wire.Bookmark
}

// OpenBookmarks loads path, starting empty when it does not exist yet.
func OpenBookmarks(path string) (*Bookmarks, error) {
	b := &Bookmarks{path: path, now: time.Now, items: []wire.Bookmark{}}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &b.items); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if b.items == nil {
		b.items = []wire.Bookmark{}
	}
	log.Printf("[INFO] store: loaded %d bookmarks", len(b.items))
	return b, nil
}

// List returns a copy of all bookmarks in insertion order.
func (b *Bookmarks) List() []wire.Bookmark {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]wire.Bookmark{}, b.items...)
}

// Add stores bm under a new millisecond-timestamp id and returns it.
func (b *Bookmarks) Add(bm wire.Bookmark) (wire.Bookmark, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.now().UnixMilli()
	for b.indexLocked(strconv.FormatInt(id, 10)) >= 0 {
		id++
	}
	bm.ID = strconv.FormatInt(id, 10)
	if err := b.validateLocked(bm); err != nil {
		return wire.Bookmark{}, err
	}
	b.items = append(b.items, bm)
	return bm, b.flush()
}

// Edit replaces the bookmark with bm's id.
func (b *Bookmarks) Edit(bm wire.Bookmark) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(bm.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrNoBookmark, bm.ID)
	}
	if err := b.validateLocked(bm); err != nil {
		return err
	}
	if b.items[idx].IsFolder && !bm.IsFolder && b.hasChildrenLocked(bm.ID) {
		return fmt.Errorf("%w: folder %q is not empty", ErrBadBookmark, bm.ID)
	}
	b.items[idx] = bm
	return b.flush()
}

// Delete removes id and, for folders, everything below it. It returns the
// number of entries removed.
func (b *Bookmarks) Delete(id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.indexLocked(id) < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoBookmark, id)
	}
	doomed := map[string]bool{id: true}
	for grew := true; grew; {
		grew = false
		for _, it := range b.items {
			if it.ParentID != nil && doomed[*it.ParentID] && !doomed[it.ID] {
				doomed[it.ID] = true
				grew = true
			}
		}
	}
	kept := b.items[:0]
	for _, it := range b.items {
		if !doomed[it.ID] {
			kept = append(kept, it)
		}
	}
	removed := len(b.items) - len(kept)
	b.items = kept
	return removed, b.flush()
}

func (b *Bookmarks) indexLocked(id string) int {
	for i, it := range b.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (b *Bookmarks) hasChildrenLocked(id string) bool {
	for _, it := range b.items {
		if it.ParentID != nil && *it.ParentID == id {
			return true
		}
	}
	return false
}

// validateLocked checks bm's fields and that its parent is an existing
// folder that is not bm itself or one of its descendants.
func (b *Bookmarks) validateLocked(bm wire.Bookmark) error {
	if strings.TrimSpace(bm.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrBadBookmark)
	}
	if !bm.IsFolder {
		if bm.Freq <= 0 {
			return fmt.Errorf("%w: frequency %v", ErrBadBookmark, bm.Freq)
		}
		if _, err := dsp.ParseMode(bm.Mode); err != nil {
			return fmt.Errorf("%w: %v", ErrBadBookmark, err)
		}
	}
	for parent, depth := bm.ParentID, 0; parent != nil; depth++ {
		if *parent == bm.ID || depth > len(b.items) {
			return fmt.Errorf("%w: %q would contain itself", ErrBadBookmark, bm.ID)
		}
		idx := b.indexLocked(*parent)
		if idx < 0 || !b.items[idx].IsFolder {
			return fmt.Errorf("%w: parent %q is not a folder", ErrBadBookmark, *parent)
		}
		parent = b.items[idx].ParentID
	}
	return nil
}

func (b *Bookmarks) flush() error {
	return writeJSON(b.path, b.items)
}
