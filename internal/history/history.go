// Package history persists accepted telemetry samples in SQLite and serves
// the temperature histogram from them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sweeney/telemetry-bridge/internal/telemetry"
)

// Defaults for Config fields left at zero.
const (
	DefaultBins      = 10
	DefaultQueueSize = 128
	writeTimeout     = 5 * time.Second
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("history: store closed")

const schema = `CREATE TABLE IF NOT EXISTS temperatures (
	id          INTEGER PRIMARY KEY,
	wert        REAL NOT NULL,
	zeit        REAL NOT NULL,
	received_at INTEGER NOT NULL
)`

const insertQuery = "INSERT INTO temperatures (id, wert, zeit, received_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING"

const selectQuery = "SELECT wert FROM temperatures"

// Config sets the histogram layout and the write queue depth.
type Config struct {
	Bins      int
	Min       float64
	Max       float64
	QueueSize int
}

// Store records samples asynchronously and computes histograms. Record
// never blocks; a full queue drops the sample with a warning.
type Store struct {
	db  *sql.DB
	cfg Config
	log *zap.SugaredLogger
	now func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan telemetry.Sample
	done   chan struct{}
}

// Open opens (or creates) the SQLite database at path and prepares the
// schema.
func Open(ctx context.Context, path string, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return New(db, cfg, log), nil
}

// New wraps an already open database and starts the write worker.
func New(db *sql.DB, cfg Config, log *zap.SugaredLogger) *Store {
	if cfg.Bins <= 0 {
		cfg.Bins = DefaultBins
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Max <= cfg.Min {
		cfg.Max = cfg.Min + 100
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		log:   log.Named("history"),
		now:   time.Now,
		queue: make(chan telemetry.Sample, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues sample for insertion.
func (s *Store) Record(sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- sample:
	default:
		s.log.Warnw("history queue full, sample dropped", "id", sample.ID)
	}
}

func (s *Store) run() {
	defer close(s.done)
	for sample := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.Insert(ctx, sample); err != nil {
			s.log.Errorw("history insert failed", "id", sample.ID, "error", err)
		}
		cancel()
	}
}

// Insert writes sample synchronously. Duplicate ids are ignored.
func (s *Store) Insert(ctx context.Context, sample telemetry.Sample) error {
	_, err := s.db.ExecContext(ctx, insertQuery, sample.ID, sample.Wert, sample.Zeit, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert sample %d: %w", sample.ID, err)
	}
	return nil
}

// Histogram counts stored values into cfg.Bins equal-width bins over
// [Min, Max). Values outside the range land in the first or last bin.
func (s *Store) Histogram(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	bins := make([]int, s.cfg.Bins)
	width := (s.cfg.Max - s.cfg.Min) / float64(s.cfg.Bins)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		bins[s.bin(v, width)]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return bins, nil
}

func (s *Store) bin(v, width float64) int {
	// Clamp before converting: int(f) is undefined outside the int range.
	f := math.Floor((v - s.cfg.Min) / width)
	switch {
	case f < 0:
		return 0
	case f >= float64(s.cfg.Bins):
		return s.cfg.Bins - 1
	}
	return int(f)
}

// Close drains queued samples and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}
