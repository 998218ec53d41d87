// Package orchestrator runs one merge end to end: download the live
// catalog, reconcile it against what is actually on the device, write
// the caller's items/ringtones/playlists inside a single transaction,
// upload new media, and swap the rebuilt catalog back into place.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/catalog/ghost"
	"catalogbridge/internal/catalog/inserter"
	"catalogbridge/internal/catalog/playlist"
	"catalogbridge/internal/catalog/resolver"
	"catalogbridge/internal/catalog/ringtone"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/device"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/lock"
	"catalogbridge/internal/metrics"
	"catalogbridge/internal/models"
	"catalogbridge/internal/plistindex"
	"catalogbridge/internal/progress"
	"catalogbridge/internal/recovery"
)

// transportRetry governs the handful of device round trips that see real
// network flakiness (tunnel reconnects, dropped USB-mux frames). Catalog
// opens and in-transaction work never go through it.
var transportRetry = recovery.RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// On-device paths the orchestrator reads and writes. These mirror the
// base_location rows schema.Seed inserts; they are declared separately
// here because the schema package only carries the numeric ids.
const (
	catalogDir     = "iTunes_Control/iTunes"
	catalogFile    = "MediaLibrary.sqlitedb"
	catalogPath    = catalogDir + "/" + catalogFile
	walPath        = catalogPath + "-wal"
	shmPath        = catalogPath + "-shm"
	stagingPath    = catalogPath + ".temp"
	musicDir       = "iTunes_Control/Music/F00"
	artworkDir     = "iTunes_Control/iTunes/Artwork/Originals"
	ringtonesDir   = "iTunes_Control/Ringtones"
	ringtonesPlist = ringtonesDir + "/Ringtones.plist"
)

// Stage identifies which part of a merge a failure happened in, for
// metrics labeling and for the driver to decide whether a retry is safe.
type Stage string

const (
	StageTransport    Stage = "transport"
	StageCatalogOpen  Stage = "catalog-open"
	StageIntegrityFail Stage = "integrity-fail"
	StageMergeFail    Stage = "merge-fail"
	StageUploadFail   Stage = "upload-fail"
	StageSwapFail     Stage = "swap-fail"
)

// Error wraps a merge failure with the stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("orchestrator: %s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error  { return e.Err }

// Orchestrator drives merges against a single paired device. It is safe
// for concurrent use across different device ids; the lock.Manager
// enforces that only one merge runs per device at a time.
type Orchestrator struct {
	device device.Adapter
	locks  *lock.Manager
	hubs   *progress.Registry
	logger *zap.Logger
}

// New returns an Orchestrator backed by adapter for file transfer, locks
// for single-writer enforcement, and hubs for progress fan-out.
func New(adapter device.Adapter, locks *lock.Manager, hubs *progress.Registry, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{device: adapter, locks: locks, hubs: hubs, logger: logger}
}

// retryConfig returns the transport retry policy bound to log, so retry
// attempts show up under the device's own logger fields.
func (o *Orchestrator) retryConfig(log *zap.Logger) recovery.RetryConfig {
	cfg := transportRetry
	cfg.Logger = log
	return cfg
}

// Run executes one merge for req and returns a summary, or a *Error
// describing which stage failed.
func (o *Orchestrator) Run(ctx context.Context, req models.MergeRequest) (models.MergeResult, error) {
	start := time.Now()
	log := o.logger.With(zap.String("device_id", req.DeviceID))
	hub := o.hubs.HubFor(req.DeviceID)
	metrics.MergesStarted.WithLabelValues(req.DeviceID).Inc()

	fail := func(stage Stage, err error) (models.MergeResult, error) {
		metrics.RecordMergeAborted(req.DeviceID, string(stage))
		hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageFailed, Message: err.Error(), Timestamp: start})
		log.Error("merge aborted", zap.String("stage", string(stage)), zap.Error(err))
		return models.MergeResult{}, &Error{Stage: stage, Err: err}
	}

	handle, err := o.locks.Acquire(ctx, req.DeviceID)
	if err != nil {
		return fail(StageTransport, fmt.Errorf("acquire device lock: %w", err))
	}
	defer func() {
		if releaseErr := o.locks.Release(context.Background(), handle); releaseErr != nil {
			log.Warn("lock release failed", zap.Error(releaseErr))
		}
	}()

	workDir, err := os.MkdirTemp("", "catalogbridge-merge-*")
	if err != nil {
		return fail(StageTransport, fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageEnumerating, Timestamp: time.Now()})
	var onDeviceMusic []string
	listErr := recovery.Retry(ctx, o.retryConfig(log), func() error {
		var err error
		onDeviceMusic, err = o.device.List(ctx, musicDir)
		return err
	})
	if listErr != nil {
		return fail(StageTransport, fmt.Errorf("list music folder: %w", listErr))
	}

	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageDownloading, Timestamp: time.Now()})
	dbPath := filepath.Join(workDir, "catalog.sqlite")
	if err := o.fetchOrCreateCatalog(ctx, dbPath); err != nil {
		return fail(StageCatalogOpen, err)
	}

	db, walWasPresent, err := o.openCatalog(ctx, dbPath)
	if err != nil {
		return fail(StageCatalogOpen, err)
	}
	defer db.Close()

	if err := checkIntegrity(ctx, db, walWasPresent); err != nil {
		return fail(StageIntegrityFail, err)
	}

	result, itemResults, toneResults, err := o.runMerge(ctx, db, req, onDeviceMusic, hub)
	if err != nil {
		return fail(StageMergeFail, err)
	}

	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageUploading, Timestamp: time.Now()})
	if err := o.uploadMedia(ctx, req, itemResults, toneResults); err != nil {
		return fail(StageUploadFail, err)
	}

	if err := finalizeCatalog(ctx, db); err != nil {
		return fail(StageIntegrityFail, err)
	}
	if err := db.Close(); err != nil {
		return fail(StageCatalogOpen, fmt.Errorf("close catalog: %w", err))
	}

	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageSwapping, Timestamp: time.Now()})
	if err := o.swapCatalog(ctx, dbPath); err != nil {
		return fail(StageSwapFail, err)
	}

	if err := o.device.NotifySyncFinished(ctx); err != nil {
		log.Warn("device sync notification failed", zap.Error(err))
	}

	result.DurationMillis = time.Since(start).Milliseconds()
	metrics.RecordMergeSucceeded(req.DeviceID, time.Since(start))
	metrics.ItemsInserted.WithLabelValues(req.DeviceID, "song").Add(float64(result.ItemsInserted))
	metrics.ItemsInserted.WithLabelValues(req.DeviceID, "tone").Add(float64(result.RingtonesAdded))
	metrics.GhostsRemoved.WithLabelValues(req.DeviceID).Add(float64(result.GhostsRemoved))
	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageDone, Timestamp: time.Now()})
	log.Info("merge completed",
		zap.Int("items_inserted", result.ItemsInserted),
		zap.Int("ringtones_added", result.RingtonesAdded),
		zap.Int("ghosts_removed", result.GhostsRemoved),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// fetchOrCreateCatalog downloads the live catalog and its WAL/SHM
// sidecars into dst's directory. When the device has no catalog, or the
// download is at or below the validity threshold, it writes nothing and
// openCatalog bootstraps a fresh catalog at dst instead.
func (o *Orchestrator) fetchOrCreateCatalog(ctx context.Context, dst string) error {
	exists, err := device.Exists(ctx, o.device, catalogDir, catalogFile)
	if err != nil {
		return fmt.Errorf("check catalog presence: %w", err)
	}
	if !exists {
		return nil
	}

	var data []byte
	readErr := recovery.Retry(ctx, o.retryConfig(o.logger), func() error {
		var err error
		data, err = o.device.ReadAll(ctx, catalogPath)
		return err
	})
	if readErr != nil {
		return fmt.Errorf("download catalog: %w", readErr)
	}
	if !schema.IsValidCatalogSize(len(data)) {
		// A present-but-truncated download routes to fresh-catalog
		// creation, not an abort: only an error encountered while merging
		// against an already-open catalog must never fall back, since
		// that would risk destroying a good library. A catalog too small
		// to be the real thing was never opened in the first place.
		o.logger.Warn("downloaded catalog below validity threshold, bootstrapping fresh catalog instead",
			zap.Int("bytes", len(data)))
		return nil
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write local catalog copy: %w", err)
	}

	if walExists, _ := device.Exists(ctx, o.device, catalogDir, catalogFile+"-wal"); walExists {
		var wal []byte
		walReadErr := recovery.Retry(ctx, o.retryConfig(o.logger), func() error {
			var err error
			wal, err = o.device.ReadAll(ctx, walPath)
			return err
		})
		if walReadErr != nil {
			return fmt.Errorf("download wal sidecar: %w", walReadErr)
		}
		if err := os.WriteFile(dst+"-wal", wal, 0o600); err != nil {
			return fmt.Errorf("write local wal copy: %w", err)
		}
	}
	if shmExists, _ := device.Exists(ctx, o.device, catalogDir, catalogFile+"-shm"); shmExists {
		var shm []byte
		shmReadErr := recovery.Retry(ctx, o.retryConfig(o.logger), func() error {
			var err error
			shm, err = o.device.ReadAll(ctx, shmPath)
			return err
		})
		if shmReadErr != nil {
			return fmt.Errorf("download shm sidecar: %w", shmReadErr)
		}
		if err := os.WriteFile(dst+"-shm", shm, 0o600); err != nil {
			return fmt.Errorf("write local shm copy: %w", err)
		}
	}
	return nil
}

// openCatalog opens dbPath, creating and seeding the schema if no file
// exists there yet (a fresh catalog), and checkpoints a carried-over WAL so the
// rest of the merge sees a consistent set of rows. It reports whether a
// WAL sidecar was present so the caller can fold that into the
// integrity check.
func (o *Orchestrator) openCatalog(ctx context.Context, dbPath string) (*sql.DB, bool, error) {
	_, statErr := os.Stat(dbPath)
	fresh := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("open catalog: %w", err)
	}

	if fresh {
		if err := schema.Create(ctx, db); err != nil {
			db.Close()
			return nil, false, fmt.Errorf("create schema: %w", err)
		}
		if err := schema.Seed(ctx, db, time.Now().Unix()); err != nil {
			db.Close()
			return nil, false, fmt.Errorf("seed schema: %w", err)
		}
		return db, false, nil
	}

	_, walErr := os.Stat(dbPath + "-wal")
	walPresent := walErr == nil
	if walPresent {
		if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
			db.Close()
			return nil, false, fmt.Errorf("checkpoint carried-over wal: %w", err)
		}
	}
	return db, walPresent, nil
}

// checkIntegrity runs the catalog's own consistency check and fails the
// merge before it ever opens a transaction against a damaged file.
func checkIntegrity(ctx context.Context, db *sql.DB, walWasPresent bool) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check reported %q (wal carried over: %v)", result, walWasPresent)
	}
	return nil
}

// finalizeCatalog materializes any WAL growth from the merge transaction
// back into the main file and switches to DELETE journaling so the
// uploaded catalog is a single self-contained file.
func finalizeCatalog(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = DELETE`); err != nil {
		return fmt.Errorf("set journal_mode delete: %w", err)
	}
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("final quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("final quick_check reported %q", result)
	}
	return nil
}

// runMerge performs the single-transaction portion of a merge: ghost
// reconciliation, item/ringtone insertion, entity writeback, and
// playlist requests. It returns the per-item and per-tone insert
// results so the caller can upload the media they reference once the
// transaction has committed.
func (o *Orchestrator) runMerge(ctx context.Context, db *sql.DB, req models.MergeRequest, onDeviceMusic []string, hub *progress.Hub) (models.MergeResult, []itemUpload, []toneUpload, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.MergeResult{}, nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageReconciling, Timestamp: time.Now()})
	ghostsRemoved, err := ghost.Reconcile(ctx, tx, onDeviceMusic)
	if err != nil {
		return models.MergeResult{}, nil, nil, fmt.Errorf("ghost reconciliation: %w", err)
	}

	now := time.Now().Unix()
	alloc := ids.New()
	res := resolver.New(tx, alloc)
	ins := inserter.New(alloc, res)

	var result models.MergeResult
	result.GhostsRemoved = ghostsRemoved

	var itemUploads []itemUpload
	hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageMerging, Total: len(req.Items), Timestamp: time.Now()})
	for i, item := range req.Items {
		sanitized := inserter.Sanitize(item)
		if inserter.IsUnknownPair(sanitized) {
			result.SkippedItems++
			continue
		}

		resolved, err := res.Resolve(ctx, sanitized.Title, sanitized.Artist, sanitized.Album, sanitized.AlbumArtist, sanitized.Genre)
		if err != nil {
			return models.MergeResult{}, nil, nil, fmt.Errorf("resolve item %d: %w", i, err)
		}
		if req.SkipDuplicates && resolved.ResurrectionPID != 0 {
			result.SkippedItems++
			continue
		}

		insResult, err := ins.Insert(ctx, tx, item, musicDir, now)
		if err != nil {
			return models.MergeResult{}, nil, nil, fmt.Errorf("insert item %d: %w", i, err)
		}
		result.ItemsInserted++
		itemUploads = append(itemUploads, itemUpload{item: item, result: insResult})
		hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageMerging, Completed: i + 1, Total: len(req.Items), Timestamp: time.Now()})
	}

	if err := ins.WriteNewEntities(ctx, tx); err != nil {
		return models.MergeResult{}, nil, nil, fmt.Errorf("write new entities: %w", err)
	}
	result.EntitiesCreated = len(res.Created())

	var toneUploads []toneUpload
	if len(req.Ringtones) > 0 {
		hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StageRingtones, Total: len(req.Ringtones), Timestamp: time.Now()})
		tones := ringtone.New(alloc)
		for i, tone := range req.Ringtones {
			pid, err := tones.Insert(ctx, tx, tone, now)
			if err != nil {
				return models.MergeResult{}, nil, nil, fmt.Errorf("insert ringtone %d: %w", i, err)
			}
			result.RingtonesAdded++
			toneUploads = append(toneUploads, toneUpload{tone: tone, itemPID: pid})
		}
	}

	if len(req.Playlists) > 0 {
		hub.Publish(progress.Event{DeviceID: req.DeviceID, Stage: progress.StagePlaylists, Total: len(req.Playlists), Timestamp: time.Now()})
		playlists := playlist.New(alloc)
		for i, spec := range req.Playlists {
			if err := applyPlaylist(ctx, tx, playlists, spec, now); err != nil {
				return models.MergeResult{}, nil, nil, fmt.Errorf("playlist %d: %w", i, err)
			}
			result.PlaylistsWritten++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.MergeResult{}, nil, nil, fmt.Errorf("commit transaction: %w", err)
	}
	committed = true

	return result, itemUploads, toneUploads, nil
}

func applyPlaylist(ctx context.Context, q dbtx.Queryer, m *playlist.Manager, spec models.PlaylistSpec, now int64) error {
	if spec.ContainerPID != 0 {
		return m.Append(ctx, q, spec.ContainerPID, spec.ItemPIDs)
	}
	_, err := m.Create(ctx, q, spec.Name, spec.ItemPIDs, now)
	return err
}

// itemUpload pairs an inserted item's catalog row with the local bytes
// the orchestrator still needs to push to the device.
type itemUpload struct {
	item   models.InputItem
	result inserter.Result
}

// toneUpload is itemUpload's ringtone analogue.
type toneUpload struct {
	tone    models.RingtoneItem
	itemPID int64
}

// uploadMedia pushes every new item's audio and artwork, then every new
// ringtone's audio, and finally rewrites Ringtones.plist to carry the
// newly inserted tones. It runs after the merge transaction has
// committed, since there is no point uploading media for a merge that
// never lands.
func (o *Orchestrator) uploadMedia(ctx context.Context, req models.MergeRequest, items []itemUpload, tones []toneUpload) error {
	for _, up := range items {
		if up.item.LocalPath != "" {
			data, err := os.ReadFile(up.item.LocalPath)
			if err != nil {
				return fmt.Errorf("read local audio %s: %w", up.item.LocalPath, err)
			}
			uploadStart := time.Now()
			if err := recovery.Retry(ctx, o.retryConfig(o.logger), func() error {
				return o.device.WriteAll(ctx, musicDir+"/"+up.item.RemoteFilename, data)
			}); err != nil {
				return fmt.Errorf("upload audio %s: %w", up.item.RemoteFilename, err)
			}
			metrics.RecordUpload(req.DeviceID, "audio", time.Since(uploadStart))
		}
		if up.result.ArtworkRelativePath != "" && len(up.item.Artwork) > 0 {
			uploadStart := time.Now()
			if err := o.device.WriteAll(ctx, artworkDir+"/"+up.result.ArtworkRelativePath, up.item.Artwork); err != nil {
				return fmt.Errorf("upload artwork for %s: %w", up.item.RemoteFilename, err)
			}
			metrics.RecordUpload(req.DeviceID, "artwork", time.Since(uploadStart))
		}
	}

	if len(tones) == 0 {
		return nil
	}

	plistBytes, err := o.readRingtonesPlist(ctx)
	if err != nil {
		return err
	}
	idx, err := plistindex.Parse(plistBytes)
	if err != nil {
		return fmt.Errorf("parse ringtones plist: %w", err)
	}

	for _, up := range tones {
		if up.tone.LocalPath != "" {
			data, err := os.ReadFile(up.tone.LocalPath)
			if err != nil {
				return fmt.Errorf("read local tone %s: %w", up.tone.LocalPath, err)
			}
			uploadStart := time.Now()
			if err := o.device.WriteAll(ctx, ringtonesDir+"/"+up.tone.RemoteFilename, data); err != nil {
				return fmt.Errorf("upload ringtone %s: %w", up.tone.RemoteFilename, err)
			}
			metrics.RecordUpload(req.DeviceID, "ringtone", time.Since(uploadStart))
		}
		duration := up.tone.DurationMS
		if duration <= 0 {
			duration = ringtone.DefaultDurationMS
		}
		idx.Put(up.tone.RemoteFilename, plistindex.Entry{
			Name:        up.tone.Title,
			TotalTimeMS: duration,
			PID:         up.itemPID,
			GUID:        up.itemPID,
		})
	}

	encoded, err := idx.Marshal()
	if err != nil {
		return fmt.Errorf("encode ringtones plist: %w", err)
	}
	if err := o.device.WriteAll(ctx, ringtonesPlist, encoded); err != nil {
		return fmt.Errorf("upload ringtones plist: %w", err)
	}
	return nil
}

func (o *Orchestrator) readRingtonesPlist(ctx context.Context) ([]byte, error) {
	exists, err := device.Exists(ctx, o.device, ringtonesDir, "Ringtones.plist")
	if err != nil {
		return nil, fmt.Errorf("check ringtones plist presence: %w", err)
	}
	if !exists {
		return nil, nil
	}
	data, err := o.device.ReadAll(ctx, ringtonesPlist)
	if err != nil {
		return nil, fmt.Errorf("download ringtones plist: %w", err)
	}
	return data, nil
}

// swapCatalog uploads the rebuilt catalog to a staging path, clears the
// live WAL/SHM sidecars (the rebuilt file carries no pending WAL frames
// of its own), and renames staging over the live catalog so readers
// never observe a partially-written file.
func (o *Orchestrator) swapCatalog(ctx context.Context, dbPath string) error {
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return fmt.Errorf("read rebuilt catalog: %w", err)
	}
	if err := o.device.WriteAll(ctx, stagingPath, data); err != nil {
		return fmt.Errorf("upload staged catalog: %w", err)
	}
	if err := o.device.Remove(ctx, walPath); err != nil {
		return fmt.Errorf("remove live wal: %w", err)
	}
	if err := o.device.Remove(ctx, shmPath); err != nil {
		return fmt.Errorf("remove live shm: %w", err)
	}
	if err := o.device.Rename(ctx, stagingPath, catalogPath); err != nil {
		return fmt.Errorf("rename staged catalog into place: %w", err)
	}
	return nil
}
