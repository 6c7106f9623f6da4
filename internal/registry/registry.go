package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Event is dispatched to observers after a mutation (spec.md §4.4).
type Event struct {
	Kind     string // "register", "update", "unregister", "reconcile", "persist", "reload"
	RecordID string
}

// document is the on-disk shape: { "installations": [ record-or-history, … ] }.
type document struct {
	Installations []json.RawMessage `json:"installations"`
}

// Registry holds the in-memory record and history tables and persists them
// as a single JSON document. Notifications are queued onto an internal
// channel and dispatched from a dedicated goroutine rather than inline from
// the mutating call, modeling spec.md §4.4's "dispatched on the driving
// thread's event-loop idle" requirement without assuming a real GUI loop.
type Registry struct {
	mu      sync.RWMutex
	path    string
	records map[string]*Record       // by digest (id)
	history map[string]*HistoryEntry // by lower-cased name

	idleCh    chan Event
	observers []func(Event)
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Registry backed by path, starting its idle-notification
// dispatcher. Call Close to stop the dispatcher goroutine.
func New(path string, observers ...func(Event)) *Registry {
	r := &Registry{
		path:      path,
		records:   make(map[string]*Record),
		history:   make(map[string]*HistoryEntry),
		idleCh:    make(chan Event, 64),
		observers: observers,
		stop:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.dispatchLoop()
	return r
}

// Close stops the notification dispatcher. Pending notifications are
// dropped.
func (r *Registry) Close() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Registry) dispatchLoop() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.idleCh:
			for _, obs := range r.observers {
				obs(ev)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) notify(ev Event) {
	select {
	case r.idleCh <- ev:
	default:
		// Queue full: drop rather than block the mutating call; a future
		// persist/reload will still reflect the true state.
	}
}

// Load reads path (if present) into a new Registry. A missing file yields
// an empty registry, no error (spec.md §4.4, §8).
func Load(path string, observers ...func(Event)) (*Registry, error) {
	r := New(path, observers...)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	if err := r.decode(data); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return r, nil
}

func (r *Registry) decode(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		// Legacy flat-array format: treated as installations only, no
		// history (spec.md §4.4, §8).
		var recs []*Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.ID != "" {
				r.records[rec.ID] = rec
			}
		}
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	for _, raw := range doc.Installations {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if _, hasID := probe["id"]; hasID {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err == nil && rec.ID != "" {
				r.records[rec.ID] = &rec
			}
			continue
		}
		var h HistoryEntry
		if err := json.Unmarshal(raw, &h); err == nil && h.Name != "" {
			r.history[strings.ToLower(h.Name)] = &h
		}
	}
	return nil
}

// List returns a snapshot of all current records (spec.md §4.4).
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupByDigest returns the record with the given digest, if registered.
func (r *Registry) LookupByDigest(digest string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[digest]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// LookupByInstalledPath performs an O(n) scan for a record by installed
// path.
func (r *Registry) LookupByInstalledPath(path string) (*Record, bool) {
	return r.scan(func(rec *Record) bool { return rec.InstalledPath == path })
}

// LookupBySourcePath performs an O(n) scan for a record by source path.
func (r *Registry) LookupBySourcePath(path string) (*Record, bool) {
	return r.scan(func(rec *Record) bool { return rec.SourcePath == path })
}

func (r *Registry) scan(match func(*Record) bool) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if match(rec) {
			cp := *rec
			return &cp, true
		}
	}
	return nil, false
}

// IsInstalled reports whether digest is currently registered.
func (r *Registry) IsInstalled(digest string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[digest]
	return ok
}

// LookupHistory returns the history entry for a lower-cased display name.
func (r *Registry) LookupHistory(name string) (*HistoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.history[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	cp := *h
	return &cp, true
}

// Register inserts rec and erases any history entry for its name, then
// notifies observers (spec.md §4.4).
func (r *Registry) Register(rec *Record) {
	r.mu.Lock()
	cp := *rec
	r.records[cp.ID] = &cp
	delete(r.history, strings.ToLower(cp.Name))
	r.mu.Unlock()

	r.notify(Event{Kind: "register", RecordID: rec.ID})
}

// Update overwrites a record by id. notify controls whether observers are
// informed (spec.md §4.4's "conditional" notification).
func (r *Registry) Update(rec *Record, notify bool) {
	r.mu.Lock()
	cp := *rec
	r.records[cp.ID] = &cp
	r.mu.Unlock()

	if notify {
		r.notify(Event{Kind: "update", RecordID: rec.ID})
	}
}

// Unregister removes the record with the given id, saving its custom
// values to history first if it has any (spec.md §4.4).
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		if h, keep := historyFromRecord(rec); keep {
			r.history[strings.ToLower(rec.Name)] = h
		}
		delete(r.records, id)
	}
	r.mu.Unlock()

	r.notify(Event{Kind: "unregister", RecordID: id})
}

// Persist writes the current in-memory state to disk via temp-file-then-
// rename, matching the atomic-write discipline used throughout the
// teacher's pkg/daemon and pkg/migrate packages (SPEC_FULL.md resolves
// spec.md §9's open question on atomic persistence in this direction).
func (r *Registry) Persist(notify bool) error {
	r.mu.RLock()
	doc := struct {
		Installations []interface{} `json:"installations"`
	}{}
	for _, rec := range r.records {
		doc.Installations = append(doc.Installations, rec)
	}
	for _, h := range r.history {
		doc.Installations = append(doc.Installations, h)
	}
	r.mu.RUnlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".app-manager-registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename registry file: %w", err)
	}

	if notify {
		r.notify(Event{Kind: "persist"})
	}
	return nil
}

// Reload discards in-memory state and re-reads from disk.
func (r *Registry) Reload(notify bool) error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return fmt.Errorf("read registry: %w", err)
		}
	}

	r.mu.Lock()
	r.records = make(map[string]*Record)
	r.history = make(map[string]*HistoryEntry)
	r.mu.Unlock()

	if len(data) > 0 {
		if err := r.decode(data); err != nil {
			return fmt.Errorf("decode registry: %w", err)
		}
	}

	if notify {
		r.notify(Event{Kind: "reload"})
	}
	return nil
}

// ReconcileWithFilesystem removes every record whose installed_path no
// longer exists, saving its custom values to history first, and deleting
// its orphaned launcher/icon/symlink. Returns the set of removed records.
// Notifies only if any were removed (spec.md §4.4).
func (r *Registry) ReconcileWithFilesystem() []*Record {
	r.mu.Lock()
	var orphaned []*Record
	for id, rec := range r.records {
		if _, err := os.Stat(rec.InstalledPath); err == nil {
			continue
		}
		if h, keep := historyFromRecord(rec); keep {
			r.history[strings.ToLower(rec.Name)] = h
		}
		cp := *rec
		orphaned = append(orphaned, &cp)
		delete(r.records, id)
	}
	r.mu.Unlock()

	for _, rec := range orphaned {
		removeIfExists(rec.DesktopFile)
		removeIfExists(rec.IconPath)
		removeIfExists(rec.BinSymlink)
	}

	if len(orphaned) > 0 {
		r.notify(Event{Kind: "reconcile"})
	}
	return orphaned
}

func removeIfExists(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
