package voiceprint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/iabetor/pivoice/internal/features"
	"github.com/iabetor/pivoice/internal/logger"
)

var (
	// ErrCorruptStore 表示特征表文件无法解析。
	ErrCorruptStore = errors.New("特征表文件损坏")
	// ErrUserNotFound 表示没有任何条目属于该用户。
	ErrUserNotFound = errors.New("用户不存在")
)

// CSV 表头，首列为条目键（无列名）。
var storeHeader = []string{"", "pitch_hz", "loudness_db", "mfccs"}

// Entry 是特征表中的一行：条目键（用户名 + 轮次数字）与特征记录。
type Entry struct {
	Key    string
	Record features.Record
}

// UserName 从条目键中去掉末尾的一位轮次数字，得到用户名。
// 末尾不是数字的键原样返回。
func UserName(key string) string {
	if n := len(key); n > 0 && key[n-1] >= '0' && key[n-1] <= '9' {
		return key[:n-1]
	}
	return key
}

// Store 是持久化的有序特征表。每次修改后立即同步写回文件。
type Store struct {
	path    string
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

// OpenStore 打开特征表。文件不存在时得到空表；文件损坏时返回 ErrCorruptStore。
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, index: make(map[string]int)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path 返回特征表文件路径。
func (s *Store) Path() string {
	return s.path
}

// Load 从文件重新加载特征表，覆盖内存中的内容。
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.entries, s.index = nil, make(map[string]int)
		s.mu.Unlock()
		logger.Infof("[voiceprint] 特征表 %s 不存在，从空表开始", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("打开特征表失败: %w", err)
	}
	defer f.Close()

	entries, err := readEntries(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = nil
	s.index = make(map[string]int, len(entries))
	for _, e := range entries {
		s.put(e)
	}
	n := len(s.entries)
	s.mu.Unlock()

	logger.Infof("[voiceprint] 已加载特征表 %s (%d 条)", s.path, n)
	return nil
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取表头失败: %v", ErrCorruptStore, err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: 第 %d 行有 %d 列，应为 %d 列", ErrCorruptStore, line, len(row), len(header))
		}
		e, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行: %v", ErrCorruptStore, line, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type columns struct{ pitch, loudness, mfccs int }

func columnIndex(header []string) (columns, error) {
	cols := columns{-1, -1, -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "pitch_hz":
			cols.pitch = i
		case "loudness_db":
			cols.loudness = i
		case "mfccs":
			cols.mfccs = i
		}
	}
	if cols.pitch <= 0 || cols.loudness <= 0 || cols.mfccs <= 0 {
		return cols, fmt.Errorf("%w: 表头缺少必要列 %v", ErrCorruptStore, header)
	}
	return cols, nil
}

func parseRow(row []string, cols columns) (Entry, error) {
	key := row[0]
	if key == "" {
		return Entry{}, errors.New("条目键为空")
	}
	pitch, err := parseOptionalFloat(row[cols.pitch])
	if err != nil {
		return Entry{}, fmt.Errorf("pitch_hz: %w", err)
	}
	loudness, err := strconv.ParseFloat(strings.TrimSpace(row[cols.loudness]), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("loudness_db: %w", err)
	}
	timbre, err := parseVector(row[cols.mfccs])
	if err != nil {
		return Entry{}, fmt.Errorf("mfccs: %w", err)
	}
	rec := features.Record{PitchHz: pitch, LoudnessDB: loudness, Timbre: timbre}
	if err := rec.Validate(); err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Record: rec}, nil
}

// 空字段表示未定义的基频。
func parseOptionalFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseVector 解析 "[ 1.00 -2.50 ... ]" 形式的向量，允许跨行。
func parseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("向量格式错误: %q", s)
	}
	fields := strings.Fields(s[1 : len(s)-1])
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// formatVector 按 TimbrePrecision 位小数写出向量。
func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', TimbrePrecision, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatOptionalFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// TimbrePrecision 是音色系数落盘保留的小数位数。
const TimbrePrecision = 2

// RoundTimbre 把音色系数舍入到落盘精度。
// 写入的样本和待验证的录音都经过它，两边在同一精度下比较。
func RoundTimbre(v []float64) []float64 {
	scale := math.Pow(10, TimbrePrecision)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Round(x*scale) / scale
	}
	return out
}

// Put 插入或替换一条记录并写回文件。替换时保留原有位置。
func (s *Store) Put(key string, rec features.Record) error {
	if key == "" {
		return fmt.Errorf("%w: 条目键为空", ErrInvalidName)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.Clone()
	rec.Timbre = RoundTimbre(rec.Timbre)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, prevIndex := s.snapshot()
	s.put(Entry{Key: key, Record: rec})
	if err := s.flushLocked(); err != nil {
		s.entries, s.index = prev, prevIndex
		return err
	}
	logger.Debugf("[voiceprint] 写入条目 %s (pitch=%.2f loudness=%.2f)", key, rec.PitchHz, rec.LoudnessDB)
	return nil
}

// put 插入或替换，调用方持有写锁。
func (s *Store) put(e Entry) {
	if i, ok := s.index[e.Key]; ok {
		s.entries[i] = e
		return
	}
	s.index[e.Key] = len(s.entries)
	s.entries = append(s.entries, e)
}

func (s *Store) snapshot() ([]Entry, map[string]int) {
	entries := append([]Entry(nil), s.entries...)
	index := make(map[string]int, len(s.index))
	for k, v := range s.index {
		index[k] = v
	}
	return entries, index
}

// RemoveUser 删除该用户的全部条目并写回文件，返回删除的条数。
// 没有任何条目属于该用户时返回 ErrUserNotFound。
func (s *Store) RemoveUser(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if UserName(e.Key) != name {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}

	prev, prevIndex := s.snapshot()
	s.entries = kept
	s.index = make(map[string]int, len(kept))
	for i, e := range kept {
		s.index[e.Key] = i
	}
	if err := s.flushLocked(); err != nil {
		s.entries, s.index = prev, prevIndex
		return 0, err
	}
	logger.Infof("[voiceprint] 已删除用户 %s 的 %d 条记录", name, removed)
	return removed, nil
}

// Flush 将当前内容写回文件。
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked 先写临时文件再重命名，中途失败不会破坏已有文件。
func (s *Store) flushLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(storeHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("写入特征表失败: %w", err)
	}
	for _, e := range s.entries {
		row := []string{
			e.Key,
			formatOptionalFloat(e.Record.PitchHz),
			strconv.FormatFloat(e.Record.LoudnessDB, 'g', -1, 64),
			formatVector(e.Record.Timbre),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("写入特征表失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("写入特征表失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("替换特征表失败: %w", err)
	}
	return nil
}

// Entries 按插入顺序返回全部条目的副本。
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = Entry{Key: e.Key, Record: e.Record.Clone()}
	}
	return out
}

// Get 按键查找记录。
func (s *Store) Get(key string) (features.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[key]
	if !ok {
		return features.Record{}, false
	}
	return s.entries[i].Record.Clone(), true
}

// Users 按首次出现的顺序返回不重复的用户名。
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, e := range s.entries {
		name := UserName(e.Key)
		if !seen[name] {
			seen[name] = true
			users = append(users, name)
		}
	}
	return users
}

// Len 返回条目数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
