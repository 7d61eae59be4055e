//go:build ignore

// Local mock control plane for trying out scenarios without a real
// target. Tracks instance and disk state in memory so conflict and
// not-found responses behave like the real thing, and can inject
// latency and random failures to exercise retries.
//
// Run with: go run scripts/mock-target.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type state struct {
	mu        sync.Mutex
	projects  map[string]bool
	instances map[string]bool // true = running
	disks     map[string]bool
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	token := flag.String("token", "", "require this bearer token (empty disables auth)")
	latency := flag.Duration("latency", 0, "artificial delay added to every response")
	flake := flag.Float64("flake", 0, "probability of a random 500 per request (0..1)")
	flag.Parse()

	st := &state{
		projects:  map[string]bool{},
		instances: map[string]bool{},
		disks:     map[string]bool{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().Format(time.RFC3339)})
	})

	mux.HandleFunc("POST /v1/projects", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "a project name is required")
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.projects[body.Name] {
			writeError(w, http.StatusBadRequest, "already_exists", fmt.Sprintf("project %q already exists", body.Name))
			return
		}
		st.projects[body.Name] = true
		writeJSON(w, http.StatusCreated, map[string]any{"name": body.Name})
	})

	mux.HandleFunc("POST /v1/instances/{name}/start", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.instances[name] {
			writeError(w, http.StatusConflict, "already_running", fmt.Sprintf("instance %q is already running", name))
			return
		}
		st.instances[name] = true
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "state": "running"})
	})

	mux.HandleFunc("POST /v1/instances/{name}/stop", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.instances[name] {
			writeError(w, http.StatusConflict, "already_stopped", fmt.Sprintf("instance %q is not running", name))
			return
		}
		st.instances[name] = false
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "state": "stopped"})
	})

	mux.HandleFunc("POST /v1/disks", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "a disk name is required")
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.disks[body.Name] {
			writeError(w, http.StatusConflict, "already_exists", fmt.Sprintf("disk %q already exists", body.Name))
			return
		}
		st.disks[body.Name] = true
		writeJSON(w, http.StatusCreated, map[string]any{"name": body.Name})
	})

	mux.HandleFunc("DELETE /v1/disks/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.disks[name] {
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no disk named %q", name))
			return
		}
		delete(st.disks, name)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := withFaults(mux, *token, *latency, *flake)

	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	fmt.Printf("Mock control plane listening on %s\n", *addr)
	fmt.Println("Endpoints:")
	fmt.Println("  - GET    /v1/ping")
	fmt.Println("  - POST   /v1/projects")
	fmt.Println("  - POST   /v1/instances/{name}/start")
	fmt.Println("  - POST   /v1/instances/{name}/stop")
	fmt.Println("  - POST   /v1/disks")
	fmt.Println("  - DELETE /v1/disks/{name}")
	if *token != "" {
		fmt.Println("Auth: bearer token required")
	}
	if *flake > 0 {
		fmt.Printf("Injecting 500s with probability %.2f\n", *flake)
	}
	fmt.Println()

	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

// withFaults wraps the real handlers with auth, latency, and random
// failure injection.
func withFaults(next http.Handler, token string, latency time.Duration, flake float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or wrong bearer token")
				return
			}
		}
		if flake > 0 && rand.Float64() < flake {
			writeError(w, http.StatusInternalServerError, "internal_error", "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error_code": code, "message": message})
}
