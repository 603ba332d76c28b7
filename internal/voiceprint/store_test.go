package voiceprint

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iabetor/pivoice/internal/features"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "voice_data.csv"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	return s
}

func makeRecord(pitch, loudness, timbreBase float64) features.Record {
	timbre := make([]float64, features.TimbreSize)
	for i := range timbre {
		timbre[i] = timbreBase + float64(i)
	}
	return features.Record{PitchHz: pitch, LoudnessDB: loudness, Timbre: timbre}
}

func TestOpenStore_MissingFile(t *testing.T) {
	s := newTestStore(t)
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", s.Len())
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("opening a missing store should not create the file, stat err = %v", err)
	}
}

func TestPut_PersistsAndReloads(t *testing.T) {
	s := newTestStore(t)

	timbre := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	rec := features.Record{PitchHz: 182.34567, LoudnessDB: -24.5, Timbre: timbre}
	if err := s.Put("alice0", rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reloaded, err := OpenStore(s.Path())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok := reloaded.Get("alice0")
	if !ok {
		t.Fatal("alice0 not found after reload")
	}
	if len(got.Timbre) != features.TimbreSize {
		t.Fatalf("len(Timbre) = %d, want %d", len(got.Timbre), features.TimbreSize)
	}
	for i, v := range timbre {
		if math.Abs(got.Timbre[i]-v) > 0.005 {
			t.Errorf("Timbre[%d] = %v, want %v", i, got.Timbre[i], v)
		}
	}
	if got.PitchHz != rec.PitchHz || got.LoudnessDB != rec.LoudnessDB {
		t.Errorf("reloaded pitch/loudness = %v/%v, want %v/%v", got.PitchHz, got.LoudnessDB, rec.PitchHz, rec.LoudnessDB)
	}
}

func TestPut_FileFormat(t *testing.T) {
	s := newTestStore(t)
	rec := makeRecord(150, -20, 0.123)
	if err := s.Put("bob0", rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != ",pitch_hz,loudness_db,mfccs" {
		t.Errorf("header = %q", lines[0])
	}
	want := `bob0,150,-20,[0.12 1.12 2.12 3.12 4.12 5.12 6.12 7.12 8.12 9.12 10.12 11.12 12.12]`
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestPut_UndefinedPitchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("carol0", makeRecord(math.NaN(), -40, 0)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	reloaded, err := OpenStore(s.Path())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, _ := reloaded.Get("carol0")
	if got.HasPitch() {
		t.Errorf("PitchHz = %v, want NaN", got.PitchHz)
	}
}

func TestPut_ReplaceKeepsPosition(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"alice0", "alice1", "bob0"} {
		if err := s.Put(k, makeRecord(100, -20, 0)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}
	if err := s.Put("alice1", makeRecord(300, -10, 5)); err != nil {
		t.Fatalf("Put(replace) failed: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Key != "alice1" || entries[1].Record.PitchHz != 300 {
		t.Errorf("entries[1] = %s/%v, want alice1/300", entries[1].Key, entries[1].Record.PitchHz)
	}
}

func TestPut_RejectsCorruptRecord(t *testing.T) {
	s := newTestStore(t)
	bad := features.Record{PitchHz: 100, LoudnessDB: -20, Timbre: []float64{1, 2, 3}}
	if err := s.Put("x0", bad); !errors.Is(err, features.ErrCorruptRecord) {
		t.Errorf("Put error = %v, want ErrCorruptRecord", err)
	}
	if s.Len() != 0 {
		t.Errorf("corrupt record was stored")
	}
}

func TestRemoveUser(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"alice0", "alice1", "bob0"} {
		if err := s.Put(k, makeRecord(100, -20, 0)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}

	n, err := s.RemoveUser("alice")
	if err != nil {
		t.Fatalf("RemoveUser failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d entries, want 2", n)
	}

	reloaded, err := OpenStore(s.Path())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	entries := reloaded.Entries()
	if len(entries) != 1 || entries[0].Key != "bob0" {
		t.Errorf("entries after delete = %+v, want only bob0", entries)
	}

	if _, err := s.RemoveUser("alice"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second RemoveUser error = %v, want ErrUserNotFound", err)
	}
}

func TestRemoveUser_PrefixIsNotUser(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"al0", "alice0"} {
		if err := s.Put(k, makeRecord(100, -20, 0)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}
	if _, err := s.RemoveUser("al"); err != nil {
		t.Fatalf("RemoveUser failed: %v", err)
	}
	if _, ok := s.Get("alice0"); !ok {
		t.Error("alice0 removed when deleting al")
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []string{"bob0", "alice0", "bob1", "alice1"} {
		if err := s.Put(k, makeRecord(100, -20, 0)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}
	got := s.Users()
	if len(got) != 2 || got[0] != "bob" || got[1] != "alice" {
		t.Errorf("Users() = %v, want [bob alice]", got)
	}
}

func TestUserName(t *testing.T) {
	tests := map[string]string{
		"alice0":  "alice",
		"bob2":    "bob",
		"r2d20":   "r2d2",
		"nodigit": "nodigit",
		"":        "",
	}
	for key, want := range tests {
		if got := UserName(key); got != want {
			t.Errorf("UserName(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestOpenStore_CorruptFile(t *testing.T) {
	cases := map[string]string{
		"wrong timbre length": ",pitch_hz,loudness_db,mfccs\nalice0,100,-20,[1 2 3]\n",
		"bad number":          ",pitch_hz,loudness_db,mfccs\nalice0,abc,-20,[1 2 3 4 5 6 7 8 9 10 11 12 13]\n",
		"missing column":      ",pitch_hz,loudness_db\nalice0,100,-20\n",
		"not a vector":        ",pitch_hz,loudness_db,mfccs\nalice0,100,-20,1 2 3\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "voice_data.csv")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := OpenStore(path); !errors.Is(err, ErrCorruptStore) {
				t.Errorf("OpenStore error = %v, want ErrCorruptStore", err)
			}
		})
	}
}

func TestOpenStore_MultilineVector(t *testing.T) {
	content := ",pitch_hz,loudness_db,mfccs\n" +
		"alice0,180.5,-22.25,\"[-250.12   80.5    10.    -3.2    4.4    5.5    6.6    7.7\n    8.8    9.9   10.1   11.2   12.3]\"\n"
	path := filepath.Join(t.TempDir(), "voice_data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	rec, ok := s.Get("alice0")
	if !ok {
		t.Fatal("alice0 not loaded")
	}
	if rec.Timbre[0] != -250.12 || rec.Timbre[12] != 12.3 {
		t.Errorf("Timbre = %v", rec.Timbre)
	}
}
