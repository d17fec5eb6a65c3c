package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wafaaboulwafa/bybit-trader/internal/market"
)

// Manifest 记录某个 pair@timeframe 缓存文件的统计信息。
type Manifest struct {
	Pair       string `json:"pair"`
	Timeframe  string `json:"timeframe"`
	MinKey     int64  `json:"min_key"`
	MaxKey     int64  `json:"max_key"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 是采集作业的本地 K 线缓存：每个 (pair, timeframe) 一个 sqlite 文件，
// 重复拉取只补缺口，不重复下载。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("缓存目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(pair, timeframe string) (*sql.DB, string, error) {
	if pair == "" || timeframe == "" {
		return nil, "", fmt.Errorf("pair/timeframe 不能为空")
	}
	key := strings.ToUpper(pair) + "@" + timeframe
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(pair, timeframe), nil
	}
	path := s.dbPath(pair, timeframe)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, pair, timeframe); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(pair, timeframe string) string {
	dir := filepath.Join(s.root, strings.ToUpper(pair))
	return filepath.Join(dir, strings.ToLower(timeframe)+".db")
}

// InsertCandles 批量写入 K 线（重复 key 覆盖旧值）。
func (s *Store) InsertCandles(ctx context.Context, pair, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	db, _, err := s.db(pair, timeframe)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (key, open, high, low, close)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Key, c.Open, c.High, c.Low, c.Close); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// QueryCandles 按 key 升序读取指定区间的 K 线；start/end 为 0 表示不限。
func (s *Store) QueryCandles(ctx context.Context, pair, timeframe string, start, end int64) ([]market.Candle, error) {
	db, _, err := s.db(pair, timeframe)
	if err != nil {
		return nil, err
	}
	if end == 0 {
		end = int64(1) << 62
	}
	rows, err := db.QueryContext(ctx,
		`SELECT key, open, high, low, close FROM candles WHERE key BETWEEN ? AND ? ORDER BY key`,
		start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Key, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Manifest(ctx context.Context, pair, timeframe string) (Manifest, error) {
	db, path, err := s.db(pair, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT pair,timeframe,min_key,max_key,rows,last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Pair, &m.Timeframe, &m.MinKey, &m.MaxKey, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_key = (SELECT COALESCE(MIN(key), 0) FROM candles),
		    max_key = (SELECT COALESCE(MAX(key), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, pair, timeframe string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			key   INTEGER PRIMARY KEY,
			open  REAL NOT NULL,
			high  REAL NOT NULL,
			low   REAL NOT NULL,
			close REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			pair TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_key INTEGER,
			max_key INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, pair, timeframe) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET pair=excluded.pair, timeframe=excluded.timeframe;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(pair), timeframe)
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
