package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iabetor/pivoice/internal/logger"
)

// DB 是 SQLite 数据库连接，保存操作审计日志。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.pivoice/pivoice.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".pivoice", "pivoice.db")
		} else {
			dbPath = "./pivoice.db"
		}
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 操作审计表：注册、删除、验证及指令发送结果
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			kind TEXT NOT NULL,
			user_key TEXT DEFAULT '',
			matched BOOLEAN DEFAULT 0,
			similarity REAL DEFAULT 0,
			transcript TEXT DEFAULT '',
			command TEXT DEFAULT '',
			outcome TEXT DEFAULT ''
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_kind ON attempts(kind)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Debug("[database] 数据库迁移完成")
	return nil
}

// 审计记录类型。
const (
	KindEnroll  = "enroll"
	KindDelete  = "delete"
	KindCommand = "command"
)

// Attempt 是一条审计记录。
type Attempt struct {
	ID         string
	CreatedAt  time.Time
	Kind       string
	UserKey    string
	Matched    bool
	Similarity float64
	Transcript string
	Command    string
	Outcome    string
}

// RecordAttempt 写入一条审计记录。CreatedAt 为零值时使用当前时间。
func (db *DB) RecordAttempt(a Attempt) error {
	if a.ID == "" {
		return fmt.Errorf("审计记录缺少 ID")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := db.Exec(`INSERT INTO attempts
		(id, created_at, kind, user_key, matched, similarity, transcript, command, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.Kind, a.UserKey,
		a.Matched, a.Similarity, a.Transcript, a.Command, a.Outcome)
	if err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// RecentAttempts 按时间倒序返回最近 limit 条审计记录。
func (db *DB) RecentAttempts(limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT id, created_at, kind, user_key, matched, similarity, transcript, command, outcome
		FROM attempts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			created string
		)
		if err := rows.Scan(&a.ID, &created, &a.Kind, &a.UserKey, &a.Matched, &a.Similarity,
			&a.Transcript, &a.Command, &a.Outcome); err != nil {
			return nil, fmt.Errorf("读取审计记录失败: %w", err)
		}
		a.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("解析审计时间失败: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
