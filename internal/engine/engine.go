// Package engine wires the Disk Manager, Buffer Pool Manager, and Catalog
// into one process-lifetime object, alongside the ambient checkpoint
// scheduler and optional admin/crypt surfaces. It accepts the Transaction
// and Lock collaborator handles the core forwards but never interprets:
// these are consumed, not implemented, here.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/catalog"
	"github.com/quill-run/minidb/internal/checkpoint"
	"github.com/quill-run/minidb/internal/config"
	"github.com/quill-run/minidb/internal/crypt"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/metrics"
)

// TxnID is an opaque transaction handle: the core forwards it to page
// operations without interpreting it. A log/lock manager would own its
// meaning; this engine has neither.
type TxnID uuid.UUID

// NewTxnID mints a fresh opaque transaction handle.
func NewTxnID() TxnID { return TxnID(uuid.New()) }

// LockHandle is an opaque page-latch token; page-level locking is a stub
// here, forwarded but never acted on.
type LockHandle struct {
	Page disk.PageID
	Txn  TxnID
}

// Engine owns one database file's full stack: disk manager, buffer pool,
// catalog, and the ambient checkpoint/admin/crypt surfaces built on top.
type Engine struct {
	cfg   *config.Config
	log   *logging.Logger
	m     *metrics.Metrics
	disk  *disk.Manager
	pool  *buffer.Pool
	cat   *catalog.Catalog
	sched *checkpoint.Scheduler
	cry   *crypt.Manager

	startedAt time.Time
}

// Open starts every configured layer: disk file, buffer pool, optional page
// cipher, catalog reload, and (if enabled) the checkpoint scheduler.
func Open(cfg *config.Config, dataFilePath string) (*Engine, error) {
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty, WithCaller: cfg.Logging.WithCaller})
	m := metrics.New(prometheus.NewRegistry())

	dm, err := disk.Open(dataFilePath)
	if err != nil {
		return nil, fmt.Errorf("engine open: %w", err)
	}

	var cry *crypt.Manager
	if cfg.Crypt.Enabled {
		cry, err = crypt.Open(cfg.Crypt.PassphraseFile, dataFilePath+".nonces")
		if err != nil {
			dm.Close()
			return nil, fmt.Errorf("engine open crypt: %w", err)
		}
		dm.SetCipher(cry)
	}

	pool := buffer.NewPool(dm, cfg.BufferPool.PoolSize, cfg.BufferPool.Replacer, log, m)

	cat, err := catalog.Open(pool, log)
	if err != nil {
		return nil, fmt.Errorf("engine open catalog: %w", err)
	}

	e := &Engine{
		cfg: cfg, log: log.Component("engine"), m: m,
		disk: dm, pool: pool, cat: cat, cry: cry,
		startedAt: time.Now(),
	}

	if cfg.Checkpoint.Enabled {
		sched, err := checkpoint.New(pool, cfg.Checkpoint.Cron, log, m)
		if err != nil {
			return nil, fmt.Errorf("engine open scheduler: %w", err)
		}
		sched.Start()
		e.sched = sched
	}

	e.log.Info("engine opened").Str("data_file", dataFilePath).Send()
	return e, nil
}

// Catalog returns the engine's catalog manager.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Pool returns the engine's buffer pool, for components (table heaps, index
// trees) that must share exactly one BPM per database.
func (e *Engine) Pool() *buffer.Pool { return e.pool }

// NumAllocatedPages reports the disk manager's live page count.
func (e *Engine) NumAllocatedPages() uint32 { return e.disk.NumAllocatedPages() }

// Uptime reports how long this Engine has been open.
func (e *Engine) Uptime() time.Duration { return time.Since(e.startedAt) }

// BeginTxn mints a new opaque transaction handle; the engine does not track
// it.
func (e *Engine) BeginTxn() TxnID { return NewTxnID() }

// Close stops the checkpoint scheduler, shuts down the buffer pool (flushing
// every dirty resident page), flushes the crypt ledger, and closes the disk
// file.
func (e *Engine) Close() error {
	if e.sched != nil {
		e.sched.Stop()
	}
	if err := e.pool.Shutdown(); err != nil {
		return fmt.Errorf("engine close: %w", err)
	}
	if e.cry != nil {
		if err := e.cry.Flush(); err != nil {
			return fmt.Errorf("engine close crypt: %w", err)
		}
	}
	e.log.Info("engine closed").Send()
	return e.disk.Close()
}
