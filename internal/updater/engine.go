package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

// WorkerCount is the fixed worker-pool capacity for parallel probes and
// updates (spec.md §4.7, §5).
const WorkerCount = 5

// Upgrader performs the Installation Engine's upgrade flow. Accepting an
// interface here (rather than importing internal/installer directly)
// keeps the Update Engine decoupled from installation orchestration
// details, per the "accept interfaces" idiom.
type Upgrader interface {
	Upgrade(ctx context.Context, rec *registry.Record, newBundlePath string, preserved map[string]string) (*registry.Record, error)
}

// Events are the signals emitted during update application, consumed by
// an external UI for progress display (spec.md §4.7).
type Events struct {
	Checking    func(rec *registry.Record)
	Downloading func(rec *registry.Record)
	Succeeded   func(rec *registry.Record)
	Failed      func(rec *registry.Record, reason string)
	Skipped     func(rec *registry.Record, reason string)
}

// Engine is the Update Engine: probes records for updates and applies
// them through an Upgrader, with a fixed-capacity worker pool and
// ordered-result collection (spec.md §4.7, §5).
type Engine struct {
	Prober   *Prober
	Registry *registry.Registry
	Upgrader Upgrader
	Logger   *Logger
	Events   Events
}

// New builds an Engine.
func New(prober *Prober, reg *registry.Registry, upgrader Upgrader, logger *Logger, events Events) *Engine {
	return &Engine{Prober: prober, Registry: reg, Upgrader: upgrader, Logger: logger, Events: events}
}

// ProbeAll probes every registered record in parallel up to WorkerCount,
// returning results in the same order as registry.List() (spec.md §4.7,
// §5's "fixed-size slot array indexed by record position").
func (e *Engine) ProbeAll(ctx context.Context) []ProbeResult {
	records := e.Registry.List()
	results := make([]ProbeResult, len(records))

	sem := make(chan struct{}, WorkerCount)
	var wg sync.WaitGroup

	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rec *registry.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.Probe(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	return results
}

// Probe probes a single record and writes an updates.log line.
func (e *Engine) Probe(ctx context.Context, rec *registry.Record) ProbeResult {
	if e.Events.Checking != nil {
		e.Events.Checking(rec)
	}

	result := e.Prober.Probe(ctx, rec)

	switch {
	case result.HasUpdate:
		e.Logger.Log(LogUpdated, rec.Name, fmt.Sprintf("update available: %s", result.AvailableVersion))
	case result.SkipReason != "":
		e.Logger.Log(LogSkipped, rec.Name, string(result.SkipReason)+": "+result.Message)
	default:
		e.Logger.Log(LogFailed, rec.Name, result.Message)
	}

	return result
}

// UpdateAll probes and applies updates for every registered record in
// parallel up to WorkerCount, returning per-record errors (nil for
// records with no update or that updated successfully).
func (e *Engine) UpdateAll(ctx context.Context) []error {
	records := e.Registry.List()
	results := make([]error, len(records))

	sem := make(chan struct{}, WorkerCount)
	var wg sync.WaitGroup

	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rec *registry.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.Update(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	return results
}

// Update probes rec; if an update is present, downloads the chosen asset,
// calls the Upgrader, and updates cache fields (spec.md §4.7).
func (e *Engine) Update(ctx context.Context, rec *registry.Record) error {
	result := e.Probe(ctx, rec)
	storeFingerprint := func(r *registry.Record) {
		if cl, ok := strings.CutPrefix(result.newFingerprint, "size:"); ok {
			r.LastModified, r.ContentLength = "", cl
		} else if lm, cl, ok := strings.Cut(result.newFingerprint, "|"); ok {
			r.LastModified, r.ContentLength = lm, cl
		}
	}
	if !result.HasUpdate {
		if result.newFingerprint != "" {
			storeFingerprint(rec)
			e.Registry.Update(rec, false)
			if err := e.Registry.Persist(false); err != nil {
				return e.fail(rec, fmt.Errorf("persist registry: %w", err))
			}
		}
		if e.Events.Skipped != nil {
			e.Events.Skipped(rec, string(result.SkipReason))
		}
		return nil
	}

	if e.Events.Downloading != nil {
		e.Events.Downloading(rec)
	}

	scratch, err := os.MkdirTemp("", "appmgr-update-*")
	if err != nil {
		return e.fail(rec, fmt.Errorf("create scratch directory: %w", err))
	}
	defer os.RemoveAll(scratch)

	bundlePath, err := e.download(ctx, rec, result, scratch)
	if err != nil {
		return e.fail(rec, err)
	}

	updated, err := e.Upgrader.Upgrade(ctx, rec, bundlePath, nil)
	if err != nil {
		return e.fail(rec, fmt.Errorf("upgrade: %w", err))
	}

	if result.newFingerprint != "" {
		storeFingerprint(updated)
	}
	if result.newTag != "" {
		updated.LastReleaseTag = result.newTag
	}
	e.Registry.Update(updated, true)
	if err := e.Registry.Persist(true); err != nil {
		return e.fail(rec, fmt.Errorf("persist registry: %w", err))
	}

	e.Logger.Log(LogUpdated, updated.Name, fmt.Sprintf("updated to %s", result.AvailableVersion))
	if e.Events.Succeeded != nil {
		e.Events.Succeeded(rec)
	}
	return nil
}

func (e *Engine) fail(rec *registry.Record, err error) error {
	e.Logger.Log(LogFailed, rec.Name, err.Error())
	if e.Events.Failed != nil {
		e.Events.Failed(rec, err.Error())
	}
	return err
}

// download fetches the selected asset into scratch. For delta sources it
// tries a local zsync-delta tool seeded with the currently-installed
// bundle first, falling back to a full download when the tool is absent
// or fails (spec.md §4.7).
func (e *Engine) download(ctx context.Context, rec *registry.Record, result ProbeResult, scratch string) (string, error) {
	dest := filepath.Join(scratch, filepath.Base(result.selectedAsset.Name))

	if strings.HasSuffix(strings.ToLower(result.selectedAsset.URL), ".zsync") {
		if path, err := deltaDownload(ctx, result.selectedAsset.URL, rec.InstalledPath, dest); err == nil {
			return path, nil
		}
		fullURL := strings.TrimSuffix(result.selectedAsset.URL, ".zsync")
		return fullDownload(ctx, fullURL, dest)
	}

	return fullDownload(ctx, result.selectedAsset.URL, dest)
}

// fullDownload performs a plain HTTP GET of url into dest, checking ctx
// cancellation between copy chunks (spec.md §5).
func fullDownload(ctx context.Context, url, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, contextReader{ctx: ctx, r: resp.Body}); err != nil {
		return "", err
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return "", err
	}
	return dest, nil
}

// deltaDownload invokes the ambient "zsync" tool with the installed
// bundle as a seed, fetching only changed blocks.
func deltaDownload(ctx context.Context, manifestURL, seedPath, dest string) (string, error) {
	if _, err := exec.LookPath("zsync"); err != nil {
		return "", fmt.Errorf("zsync tool not available: %w", err)
	}

	cmd := exec.CommandContext(ctx, "zsync", "-i", seedPath, "-o", dest, manifestURL)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("zsync: %w", err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return "", err
	}
	return dest, nil
}

// contextReader wraps an io.Reader, returning ctx.Err() once the context
// is done instead of continuing to read (spec.md §5's "check the
// cancellation token between chunks").
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
	}
	return c.r.Read(p)
}
