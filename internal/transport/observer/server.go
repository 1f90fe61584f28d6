package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"tilecraft.ai/internal/protocol"
	"tilecraft.ai/internal/sim/world"
)

// Server exposes read-only world state over loopback HTTP. Handlers never
// touch the tick; they read published entity views, the locked tile grid
// and the published session list.
type Server struct {
	world *world.World
	log   *log.Logger
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{world: w, log: logger}
}

// Register mounts the observer routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", s.guard(s.handleState))
	mux.HandleFunc("/admin/v1/entities", s.guard(s.handleEntities))
	mux.HandleFunc("/admin/v1/tile", s.guard(s.handleTile))
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

type StateResponse struct {
	Tick     uint64              `json:"tick"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Stats    world.Stats         `json:"stats"`
	Sessions []world.SessionInfo `json:"sessions"`
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	t := s.world.Tiles()
	sessions := append([]world.SessionInfo(nil), s.world.Sessions()...)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	writeJSON(rw, StateResponse{
		Tick:     s.world.CurrentTick(),
		Width:    t.Width(),
		Height:   t.Height(),
		Stats:    s.world.Stats(),
		Sessions: sessions,
	})
}

type EntitiesResponse struct {
	Tick     uint64                 `json:"tick"`
	Entities []protocol.EntityState `json:"entities"`
}

// handleEntities lists published entity views, optionally filtered by
// ?kind=PLAYER|MOB|ITEM|PROJECTILE.
func (s *Server) handleEntities(rw http.ResponseWriter, r *http.Request) {
	kind := strings.ToUpper(r.URL.Query().Get("kind"))
	out := EntitiesResponse{Tick: s.world.CurrentTick(), Entities: []protocol.EntityState{}}
	for _, e := range s.world.Entities().Entities() {
		v := e.View()
		if v == nil {
			continue
		}
		if kind != "" && v.Wire.Kind != kind {
			continue
		}
		out.Entities = append(out.Entities, v.Wire)
	}
	sort.Slice(out.Entities, func(i, j int) bool { return out.Entities[i].ID < out.Entities[j].ID })
	writeJSON(rw, out)
}

type TileResponse struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Index uint16 `json:"index"`
	Block string `json:"block"`
}

func (s *Server) handleTile(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		http.Error(rw, "x and y are required integers", http.StatusBadRequest)
		return
	}
	t := s.world.Tiles()
	if !t.InBounds(x, y) {
		http.Error(rw, "out of bounds", http.StatusNotFound)
		return
	}
	idx := t.Tile(x, y)
	resp := TileResponse{X: x, Y: y, Index: idx}
	if d, ok := s.world.Catalogs().Block(idx); ok {
		resp.Block = d.ID
	}
	writeJSON(rw, resp)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
