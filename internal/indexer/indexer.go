// Package indexer keeps the vector store in sync with a documents directory.
package indexer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"personal-rag/internal/config"
	"personal-rag/internal/ingestion"
	"personal-rag/internal/models"
	"personal-rag/internal/parser"
	"personal-rag/internal/vectorstore"
)

// Ingester is the part of the ingestion pipeline the indexer drives.
type Ingester interface {
	Ingest(ctx context.Context, store vectorstore.Store, data []byte, filename string, ids ingestion.IDFunc) (*models.UploadResult, error)
}

// ScanReport summarizes one pass over the documents directory.
type ScanReport struct {
	Scanned   int
	Unchanged int
	Indexed   int
	Failed    int
	Chunks    int
}

type Indexer struct {
	docsDir    string
	interval   time.Duration
	workers    int
	watch      bool
	extensions []string

	ingester   Ingester
	store      vectorstore.Store
	checkpoint *Checkpoint

	scanMu sync.Mutex
}

func New(cfg config.IndexerConfig, ingester Ingester, store vectorstore.Store) *Indexer {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = parser.SupportedExtensions
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultScanInterval
	}
	return &Indexer{
		docsDir:    cfg.DocsDir,
		interval:   interval,
		workers:    workers,
		watch:      cfg.Watch,
		extensions: exts,
		ingester:   ingester,
		store:      store,
		checkpoint: LoadCheckpoint(cfg.CheckpointPath),
	}
}

func (ix *Indexer) Checkpoint() *Checkpoint {
	return ix.checkpoint
}

type candidate struct {
	name string // relative to docsDir
	path string
	data []byte
	hash string
}

// ScanOnce ingests every new or changed file under the documents directory.
// Per-file failures are logged and counted; they never abort the scan.
func (ix *Indexer) ScanOnce(ctx context.Context) (ScanReport, error) {
	return ix.scan(ctx, false)
}

// IngestNew ingests every supported file whether or not its hash changed and
// returns the number of chunks stored. Deterministic ids keep it idempotent.
func (ix *Indexer) IngestNew(ctx context.Context) (int, error) {
	report, err := ix.scan(ctx, true)
	return report.Chunks, err
}

func (ix *Indexer) scan(ctx context.Context, force bool) (ScanReport, error) {
	ix.scanMu.Lock()
	defer ix.scanMu.Unlock()

	var report ScanReport
	if _, err := os.Stat(ix.docsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("docs_dir", ix.docsDir).Msg("Documents directory not found")
			return report, nil
		}
		return report, fmt.Errorf("failed to stat documents directory: %w", err)
	}

	log.Info().Str("docs_dir", ix.docsDir).Msg("Scanning documents")
	pending, err := ix.changedFiles(ctx, &report, force)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		log.Info().Int("scanned", report.Scanned).Msg("No new or changed files found")
		return report, nil
	}
	log.Info().Int("files", len(pending)).Msg("Found files to process")

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return report, fmt.Errorf("failed to create indexing pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range pending {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			chunks, err := ix.indexFile(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				return
			}
			report.Indexed++
			report.Chunks += chunks
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			log.Error().Err(err).Str("filename", c.name).Msg("Failed to schedule file")
			mu.Lock()
			report.Failed++
			mu.Unlock()
		}
	}
	wg.Wait()

	log.Info().
		Int("indexed", report.Indexed).
		Int("failed", report.Failed).
		Int("chunks", report.Chunks).
		Msg("Scan complete")
	return report, ctx.Err()
}

func (ix *Indexer) changedFiles(ctx context.Context, report *ScanReport, force bool) ([]candidate, error) {
	var pending []candidate
	err := filepath.WalkDir(ix.docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to walk path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !parser.IsSupported(d.Name(), ix.extensions) {
			return nil
		}

		rel, err := filepath.Rel(ix.docsDir, path)
		if err != nil {
			rel = d.Name()
		}
		rel = filepath.ToSlash(rel)
		report.Scanned++

		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("filename", rel).Msg("Failed to read file")
			report.Failed++
			return nil
		}
		hash := hashContent(data)
		if prev, ok := ix.checkpoint.Get(rel); ok && prev == hash && !force {
			report.Unchanged++
			return nil
		}
		pending = append(pending, candidate{name: rel, path: path, data: data, hash: hash})
		return nil
	})
	sort.Slice(pending, func(i, j int) bool { return pending[i].name < pending[j].name })
	return pending, err
}

// indexFile ingests one file and records its hash once all chunks are stored.
// An empty extraction still counts as indexed so the file is not retried
// until its bytes change.
func (ix *Indexer) indexFile(ctx context.Context, c candidate) (int, error) {
	logger := log.With().Str("filename", c.name).Logger()
	logger.Info().Int("bytes", len(c.data)).Msg("Indexing file")

	result, err := ix.ingester.Ingest(ctx, ix.store, c.data, c.name, ingestion.DeterministicID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to index file")
		return 0, err
	}
	if err := ix.checkpoint.Record(c.name, c.hash); err != nil {
		logger.Error().Err(err).Msg("Failed to persist checkpoint")
		return result.ChunksStored, err
	}

	logger.Info().
		Int("stored", result.ChunksStored).
		Int("created", result.ChunksCreated).
		Msg("Indexed file")
	return result.ChunksStored, nil
}

// Run polls the documents directory until ctx is cancelled. A failed pass is
// logged and retried after a full interval.
func (ix *Indexer) Run(ctx context.Context) error {
	log.Info().
		Str("docs_dir", ix.docsDir).
		Dur("interval", ix.interval).
		Int("workers", ix.workers).
		Bool("watch", ix.watch).
		Msg("Starting document indexer")

	var wake <-chan struct{}
	if ix.watch {
		w, err := newWatcher(ix.docsDir)
		if err != nil {
			log.Error().Err(err).Msg("File watching disabled")
		} else {
			defer w.Close()
			wake = w.Start(ctx)
		}
	}

	for {
		ix.runPass(ctx)

		// the wait starts after the pass so a slow pass never shortens it
		timer := time.NewTimer(ix.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Document indexer stopped")
			return nil
		case <-timer.C:
		case <-wake:
			timer.Stop()
			log.Debug().Msg("Change detected, scanning early")
		}
	}
}

func (ix *Indexer) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Indexing pass panicked")
		}
	}()
	if _, err := ix.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Indexing pass failed")
	}
}

func hashContent(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
