package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tilecraft.ai/internal/persistence/store"
)

func playersCmd(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	name := fs.String("name", "", "show one player's inventory")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	st, err := store.OpenSQLite(path, log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if n := strings.TrimSpace(*name); n != "" {
		rec, err := st.LoadPlayer(ctx, n)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load:", err)
			os.Exit(1)
		}
		if rec == nil {
			fmt.Fprintln(os.Stderr, "no such player")
			os.Exit(2)
		}
		fmt.Printf("%s class=%s pos=(%.2f,%.2f) hp=%d spawn=%v bed=%v tick=%d\n",
			rec.Name, rec.Class, rec.X, rec.Y, rec.HP, rec.Spawn, rec.BedSpawn, rec.SavedTick)
		for i, s := range rec.Inventory.Slots {
			if s.Empty() {
				continue
			}
			mark := " "
			if i == rec.Inventory.Selected {
				mark = "*"
			}
			fmt.Printf(" %s%2d %-16s x%d", mark, i, s.Item, s.Count)
			if s.TotalUses > 0 {
				fmt.Printf(" uses=%d/%d", s.Uses, s.TotalUses)
			}
			fmt.Println()
		}
		return
	}

	players, err := st.Players(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, p := range players {
		fmt.Printf("%-16s %-10s pos=(%.1f,%.1f) hp=%d tick=%d updated=%s\n",
			p.Name, p.Class, p.X, p.Y, p.HP, p.SavedTick, p.UpdatedAt)
	}
}
