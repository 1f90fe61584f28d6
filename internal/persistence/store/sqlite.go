package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"tilecraft.ai/internal/sim/world"
)

// ErrBadPassword is returned by Authenticate for a known name with the
// wrong password.
var ErrBadPassword = errors.New("bad password")

// SQLiteStore keeps accounts and player records. Reads run on the caller's
// goroutine; SavePlayer only queues, and a single writer goroutine applies
// the queue in batches.
type SQLiteStore struct {
	db  *sql.DB
	log *log.Logger

	ch   chan world.PlayerRecord
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.RWMutex
	closed  bool
	pending map[string]world.PlayerRecord

	dropped atomic.Uint64
	written atomic.Uint64
}

type Stats struct {
	Written       uint64
	Dropped       uint64
	QueueDepth    int
	QueueCapacity int
}

// PlayerSummary is one row of the players table without the inventory.
type PlayerSummary struct {
	Name      string
	Class     string
	X, Y      float64
	HP        int
	SavedTick uint64
	UpdatedAt string
}

func OpenSQLite(path string, logger *log.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:      db,
		log:     logger,
		ch:      make(chan world.PlayerRecord, 4096),
		pending: map[string]world.PlayerRecord{},
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			name TEXT PRIMARY KEY,
			salt TEXT NOT NULL,
			hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			name TEXT PRIMARY KEY,
			class TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			hp INTEGER NOT NULL,
			spawn_x INTEGER NOT NULL,
			spawn_y INTEGER NOT NULL,
			bed_spawn INTEGER NOT NULL,
			inventory BLOB NOT NULL,
			saved_tick INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Authenticate checks name/password. Unknown names are registered with the
// given password. It returns the saved player record, or nil for a new
// player.
func (s *SQLiteStore) Authenticate(name, password string) (*world.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var salt, hash string
	err := s.db.QueryRowContext(ctx, `SELECT salt, hash FROM accounts WHERE name = ?`, name).Scan(&salt, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		salt, err = newSalt()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO accounts(name, salt, hash, created_at) VALUES(?,?,?,?)`,
			name, salt, hashPassword(salt, password), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		s.log.Printf("store: registered account %s", name)
	case err != nil:
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	default:
		got := hashPassword(salt, password)
		if subtle.ConstantTimeCompare([]byte(got), []byte(hash)) != 1 {
			return nil, ErrBadPassword
		}
	}
	return s.LoadPlayer(ctx, name)
}

// LoadPlayer returns the latest record for name, including one still
// waiting in the write queue. It returns nil, nil when none exists.
func (s *SQLiteStore) LoadPlayer(ctx context.Context, name string) (*world.PlayerRecord, error) {
	s.mu.RLock()
	rec, ok := s.pending[name]
	s.mu.RUnlock()
	if ok {
		return &rec, nil
	}

	var (
		r        world.PlayerRecord
		bed      int
		inv      []byte
		savedRaw int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, class, x, y, hp, spawn_x, spawn_y, bed_spawn, inventory, saved_tick
		FROM players WHERE name = ?`, name).
		Scan(&r.Name, &r.Class, &r.X, &r.Y, &r.HP, &r.Spawn[0], &r.Spawn[1], &bed, &inv, &savedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	r.BedSpawn = bed != 0
	r.SavedTick = uint64(savedRaw)
	if err := msgpack.Unmarshal(inv, &r.Inventory); err != nil {
		return nil, fmt.Errorf("load %s inventory: %w", name, err)
	}
	return &r, nil
}

// SavePlayer queues rec. It never blocks; a full queue drops the write.
func (s *SQLiteStore) SavePlayer(rec world.PlayerRecord) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}
	select {
	case s.ch <- rec:
		s.pending[rec.Name] = rec
		return nil
	default:
		s.dropped.Add(1)
		return fmt.Errorf("player queue full, dropped %s", rec.Name)
	}
}

// Players lists saved players ordered by name.
func (s *SQLiteStore) Players(ctx context.Context) ([]PlayerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, class, x, y, hp, saved_tick, updated_at FROM players ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerSummary
	for rows.Next() {
		var p PlayerSummary
		var saved int64
		if err := rows.Scan(&p.Name, &p.Class, &p.X, &p.Y, &p.HP, &saved, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.SavedTick = uint64(saved)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()
	upsert, err := s.db.Prepare(`INSERT OR REPLACE INTO players
		(name, class, x, y, hp, spawn_x, spawn_y, bed_spawn, inventory, saved_tick, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Printf("store: prepare: %v", err)
	} else {
		defer upsert.Close()
	}

	batch := make([]world.PlayerRecord, 0, 64)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writeBatch(ctx, upsert, batch); err != nil {
			s.log.Printf("store: write %d players: %v", len(batch), err)
		}
		s.mu.Lock()
		for _, r := range batch {
			if p, ok := s.pending[r.Name]; ok && p.SavedTick == r.SavedTick {
				delete(s.pending, r.Name)
			}
		}
		s.mu.Unlock()
		batch = batch[:0]
	}

	for rec := range s.ch {
		batch = append(batch, rec)
		if len(s.ch) == 0 || len(batch) == cap(batch) {
			flush()
		}
	}
	flush()
}

func (s *SQLiteStore) writeBatch(ctx context.Context, upsert *sql.Stmt, batch []world.PlayerRecord) error {
	if upsert == nil {
		return fmt.Errorf("no statement")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	stmt := tx.StmtContext(ctx, upsert)
	for _, r := range batch {
		inv, err := msgpack.Marshal(&r.Inventory)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode %s: %w", r.Name, err)
		}
		bed := 0
		if r.BedSpawn {
			bed = 1
		}
		if _, err := stmt.ExecContext(ctx, r.Name, r.Class, r.X, r.Y, r.HP, r.Spawn[0], r.Spawn[1], bed, inv, int64(r.SavedTick), now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.written.Add(uint64(len(batch)))
	return nil
}

// Close drains queued writes and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
