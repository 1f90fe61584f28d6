package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"tilecraft.ai/internal/sim/blocks"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "x-2026-03-01-10.jsonl.zst"))
	second := readLines(t, filepath.Join(dir, "x-2026-03-01-11.jsonl.zst"))
	if len(first) != 1 || first[0] != `{"n":1}` {
		t.Fatalf("first hour: %q", first)
	}
	if len(second) != 1 || second[0] != `{"n":2}` {
		t.Fatalf("second hour: %q", second)
	}
}

func TestAuditLoggerWritesMutations(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	for i := 0; i < 5; i++ {
		m := blocks.Mutation{Tick: uint64(i + 1), Actor: "alice", Action: "BREAK", X: i, Y: 4, From: "DIRT", To: "AIR"}
		if err := l.WriteAudit(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.WriteAudit(blocks.Mutation{}); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "audit", "audit-*.jsonl.zst"))
	var got []blocks.Mutation
	for _, f := range files {
		for _, line := range readLines(t, f) {
			var m blocks.Mutation
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				t.Fatalf("line %q: %v", line, err)
			}
			got = append(got, m)
		}
	}
	if len(got) != 5 {
		t.Fatalf("mutations: %d", len(got))
	}
	for i, m := range got {
		if m.Tick != uint64(i+1) || m.X != i || m.Action != "BREAK" {
			t.Fatalf("mutation %d: %+v", i, m)
		}
	}
}

func TestAuditLoggerDropsWhenFull(t *testing.T) {
	l := &AuditLogger{ch: make(chan blocks.Mutation, 1)}
	if err := l.WriteAudit(blocks.Mutation{Tick: 1}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := l.WriteAudit(blocks.Mutation{Tick: 2}); err == nil {
		t.Fatalf("expected queue full")
	}
	if l.Dropped() != 1 {
		t.Fatalf("dropped %d", l.Dropped())
	}
}
