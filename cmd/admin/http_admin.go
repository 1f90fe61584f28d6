package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tilecraft.ai/internal/transport/observer"
)

// stateCmd fetches /admin/v1/state and prints a tick and session summary.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw response")
	_ = fs.Parse(args)

	st, body, err := fetchState(&http.Client{Timeout: 5 * time.Second}, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(body))
		return
	}
	printState(os.Stdout, st)
}

func fetchState(cl *http.Client, baseURL string) (observer.StateResponse, []byte, error) {
	var st observer.StateResponse
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	resp, err := cl.Get(u)
	if err != nil {
		return st, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return st, body, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, body, fmt.Errorf("decode: %w", err)
	}
	return st, body, nil
}

func printState(w io.Writer, st observer.StateResponse) {
	s := st.Stats
	fmt.Fprintf(w, "tick=%d world=%dx%d step=%s max_step=%s\n", st.Tick, st.Width, st.Height, s.StepTime, s.MaxStep)
	fmt.Fprintf(w, "sessions=%d synced=%d entities=%d players=%d mobs=%d items=%d containers=%d\n",
		s.Sessions, s.Synced, s.Entities, s.Players, s.Mobs, s.Items, s.Containers)
	for _, si := range st.Sessions {
		synced := "syncing"
		if si.Synced {
			synced = "synced"
		}
		fmt.Fprintf(w, "  %-16s %-10s entity=%-6d joined@%d %s\n", si.Name, si.Class, si.EntityID, si.Admitted, synced)
	}
}
