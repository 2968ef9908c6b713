package datarecording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/id"
)

const defaultBatchSize = 10000

const timeLayout = "2006-01-02 15:04:05.000000000"

// A Recorder is a hook that stores every invocation as an Event.
//
// Func only appends to an in-memory batch, so it is safe to call while a
// component holds its locks. Full batches are written by a background
// goroutine; Flush writes whatever is pending.
type Recorder struct {
	store     Store
	runID     string
	idGen     id.IDGenerator
	batchSize int

	lock    sync.Mutex
	pending []Event
	closed  bool

	writeLock sync.Mutex
	flushReq  chan struct{}
	stopped   chan struct{}
	exitOnce  sync.Once
	start     time.Time
}

// Config selects and configures the storage backend of a recorder.
type Config struct {
	// Type is "sqlite" (default) or "clickhouse".
	Type string

	// Path is the SQLite file name without extension. Empty picks a unique
	// name.
	Path string

	// DSN addresses the ClickHouse server.
	DSN string

	// RunID tags every stored row. Empty picks a unique ID.
	RunID string

	// BatchSize is the number of pending events that triggers a write.
	BatchSize int
}

// New creates a recorder writing to the SQLite file path + ".sqlite3". With an
// empty path a unique name is generated.
func New(path string) (*Recorder, error) {
	return NewWithConfig(context.Background(), Config{Path: path})
}

// NewWithConfig creates a recorder with the backend selected by cfg.
func NewWithConfig(ctx context.Context, cfg Config) (*Recorder, error) {
	var (
		store Store
		err   error
	)

	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "lockstep_" + xid.New().String()
		}

		store, err = OpenSQLite(path)
	case "clickhouse":
		store, err = OpenClickHouse(ctx, cfg.DSN)
	default:
		err = fmt.Errorf("unknown recorder type %q", cfg.Type)
	}

	if err != nil {
		return nil, err
	}

	r, err := NewWithStore(ctx, store, cfg.RunID, cfg.BatchSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	slog.Info("recording events", "store", fmt.Sprint(store), "run", r.runID)

	return r, nil
}

// NewWithStore creates a recorder on an open store. The recorder owns the
// store and closes it in Close.
func NewWithStore(
	ctx context.Context,
	store Store,
	runID string,
	batchSize int,
) (*Recorder, error) {
	if err := store.CreateTables(ctx); err != nil {
		return nil, err
	}

	if runID == "" {
		runID = xid.New().String()
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	r := &Recorder{
		store:     store,
		runID:     runID,
		idGen:     id.NewIDGenerator(),
		batchSize: batchSize,
		flushReq:  make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		start:     time.Now(),
	}

	go r.flushLoop()

	atexit.Register(func() {
		if err := r.Close(); err != nil {
			slog.Error("failed to close recorder", "error", err)
		}
	})

	return r, nil
}

// RunID returns the ID that tags the rows of this recorder.
func (r *Recorder) RunID() string {
	return r.runID
}

// Func buffers the invocation.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	e := makeEvent(r.runID, r.idGen.Generate(), ctx)

	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return
	}

	r.pending = append(r.pending, e)
	full := len(r.pending) >= r.batchSize
	r.lock.Unlock()

	if full {
		select {
		case r.flushReq <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of events not yet written.
func (r *Recorder) Pending() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.pending)
}

func (r *Recorder) flushLoop() {
	for {
		select {
		case <-r.stopped:
			return
		case <-r.flushReq:
			if err := r.Flush(); err != nil {
				slog.Error("failed to flush recorded events", "error", err)
			}
		}
	}
}

// Flush writes all pending events in one transaction.
func (r *Recorder) Flush() error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	r.lock.Lock()
	batch := r.pending
	r.pending = nil
	r.lock.Unlock()

	if len(batch) == 0 {
		return nil
	}

	return r.store.WriteEvents(context.Background(), batch)
}

// Events flushes and returns every event stored for this run.
func (r *Recorder) Events() ([]Event, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}

	return r.store.ReadEvents(context.Background(), r.runID)
}

// Close records the process information, flushes the pending events and
// closes the store. Events reported after Close are dropped. Calling Close
// more than once is harmless.
func (r *Recorder) Close() error {
	var err error

	r.exitOnce.Do(func() {
		close(r.stopped)

		r.lock.Lock()
		r.closed = true
		r.lock.Unlock()

		err = r.Flush()

		if infoErr := r.store.WriteExecInfo(
			context.Background(), r.execInfo()); err == nil {
			err = infoErr
		}

		if closeErr := r.store.Close(); err == nil {
			err = closeErr
		}
	})

	return err
}

func (r *Recorder) execInfo() []ExecInfo {
	infos := []ExecInfo{
		{Property: "Start Time", Value: r.start.Format(timeLayout)},
		{Property: "End Time", Value: time.Now().Format(timeLayout)},
		{Property: "Command", Value: strings.Join(os.Args, " ")},
	}

	if wd, err := os.Getwd(); err == nil {
		infos = append(infos, ExecInfo{Property: "Working Directory", Value: wd})
	}

	for i := range infos {
		infos[i].RunID = r.runID
	}

	return infos
}
