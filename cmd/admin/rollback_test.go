package main

import (
	"testing"

	persistlog "tilecraft.ai/internal/persistence/log"
	"tilecraft.ai/internal/persistence/snapshot"
	"tilecraft.ai/internal/sim/blocks"
)

func TestParseRect(t *testing.T) {
	min, max, err := parseRect("10,4:2,8")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if min != [2]int{2, 4} || max != [2]int{10, 8} {
		t.Fatalf("rect %v %v", min, max)
	}
	for _, bad := range []string{"1,2", "1,2:3", "a,b:1,2"} {
		if _, _, err := parseRect(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestRollbackRestoresOldestState(t *testing.T) {
	dir := t.TempDir()
	audit := persistlog.NewAuditLogger(dir)
	muts := []blocks.Mutation{
		{Tick: 10, Actor: "alice", Action: "BREAK", X: 1, Y: 1, From: "DIRT", To: "AIR"},
		{Tick: 12, Actor: "bob", Action: "PLACE", X: 1, Y: 1, From: "AIR", To: "STONE"},
		{Tick: 13, Actor: "bob", Action: "PLACE", X: 3, Y: 0, From: "AIR", To: "STONE"},
		{Tick: 40, Actor: "alice", Action: "BREAK", X: 0, Y: 0, From: "STONE", To: "AIR"},
		{Tick: 11, Actor: "alice", Action: "PLACE", X: 9, Y: 9, From: "AIR", To: "DIRT"},
	}
	for _, m := range muts {
		if err := audit.WriteAudit(m); err != nil {
			t.Fatalf("audit: %v", err)
		}
	}
	if err := audit.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := readAudit(dir, auditFilter{Since: 0, To: 30, Min: [2]int{0, 0}, Max: [2]int{3, 3}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 || recs[0].Entry.Tick != 13 || recs[2].Entry.Tick != 10 {
		t.Fatalf("recs: %+v", recs)
	}

	// AIR=0 DIRT=1 STONE=2; current state after the mutations above.
	snap := snapshot.WorldV1{
		Header:  snapshot.Header{Version: snapshot.Version, Tick: 50, Width: 4, Height: 2},
		Palette: []string{"AIR", "DIRT", "STONE"},
		Tiles: []uint16{
			0, 0, 0, 2,
			0, 2, 0, 0,
		},
	}
	applied, skipped := applyRollback(&snap, recs)
	if applied != 3 || skipped != 0 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	if snap.Tiles[1*4+1] != 1 {
		t.Fatalf("(1,1) = %d, want DIRT", snap.Tiles[5])
	}
	if snap.Tiles[3] != 0 {
		t.Fatalf("(3,0) = %d, want AIR", snap.Tiles[3])
	}

	onlyBob, err := readAudit(dir, auditFilter{To: 100, Min: [2]int{0, 0}, Max: [2]int{10, 10}, Actor: "bob"})
	if err != nil || len(onlyBob) != 2 {
		t.Fatalf("actor filter: %d %v", len(onlyBob), err)
	}
}

func TestBlockHistogram(t *testing.T) {
	snap := snapshot.WorldV1{Palette: []string{"AIR", "DIRT"}, Tiles: []uint16{0, 0, 1, 0, 7}}
	rows := blockHistogram(snap)
	if len(rows) != 3 || rows[0].name != "AIR" || rows[0].count != 3 {
		t.Fatalf("rows: %+v", rows)
	}
}
