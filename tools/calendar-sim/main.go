package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// calendar-sim stands in for the external calendar during local runs. It
// records every push it accepts and can be told to fail the first N
// requests, which exercises the sync worker's retry and warning paths.

type receivedPush struct {
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt string         `json:"received_at"`
}

type simulator struct {
	mu        sync.Mutex
	token     string
	failFirst int
	seen      int
	pushes    []receivedPush
}

func main() {
	var (
		addr      = flag.String("addr", getenv("ADDR", ":9090"), "listen address")
		token     = flag.String("token", getenv("CALENDAR_WEBHOOK_TOKEN", ""), "expected bearer token (empty disables the check)")
		failFirst = flag.Int("fail-first", 0, "reject this many pushes with 503 before accepting")
	)
	flag.Parse()

	sim := &simulator{token: strings.TrimSpace(*token), failFirst: *failFirst}

	mux := http.NewServeMux()
	mux.HandleFunc("/push", sim.handlePush)
	mux.HandleFunc("/pushes", sim.handleList)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Printf("calendar-sim listening on %s (fail-first=%d)", *addr, *failFirst)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func (s *simulator) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Action  string         `json:"action"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
		http.Error(w, "invalid push body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if s.seen <= s.failFirst {
		log.Printf("injected failure %d/%d action=%s", s.seen, s.failFirst, body.Action)
		http.Error(w, "simulated outage", http.StatusServiceUnavailable)
		return
	}

	s.pushes = append(s.pushes, receivedPush{
		Action:     body.Action,
		Payload:    body.Payload,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	})
	log.Printf("accepted action=%s total=%d", body.Action, len(s.pushes))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

func (s *simulator) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"pushes": s.pushes})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
