package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type windowStats struct {
	WindowID       int64   `json:"window_id"`
	BytesPerSec    float64 `json:"bytes_per_sec"`
	PktsPerSec     float64 `json:"pkts_per_sec"`
	SynRate        float64 `json:"syn_rate"`
	FailedConnRate float64 `json:"failed_conn_rate"`
}

var statsPattern = regexp.MustCompile(`Window stats: (\{[^\n]*\})`)

// Responses: "json" answers with a strict verdict, "prose" with free text
// that only the keyword fallback understands, "error" with a 500.
func main() {
	addr := flag.String("addr", ":11434", "listen address")
	mode := flag.String("mode", "json", "response mode: json, prose or error")
	flag.Parse()

	logger := log.New(log.Writer(), "llm-mock ", log.LstdFlags|log.Lmicroseconds)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/api/generate", generateHandler(*mode))

	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}
	logger.Printf("listening on %s (mode=%s)", *addr, *mode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func generateHandler(mode string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if mode == "error" {
			http.Error(w, "model unavailable", http.StatusInternalServerError)
			return
		}

		label, rationale := judge(req.Prompt)
		text := fmt.Sprintf(`{"label": %d, "rationale": %q}`, label, rationale)
		if mode == "prose" {
			if label == 1 {
				text = "This window looks anomalous: " + rationale
			} else {
				text = "Looks fine to me. " + rationale
			}
		}
		writeJSON(w, map[string]any{
			"model":      req.Model,
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"response":   text,
			"done":       true,
		})
	})
}

// judge applies fixed thresholds to the window stats embedded in the prompt.
func judge(prompt string) (int, string) {
	m := statsPattern.FindStringSubmatch(prompt)
	if m == nil {
		return 0, "No window stats found in prompt."
	}
	var s windowStats
	if err := json.Unmarshal([]byte(m[1]), &s); err != nil {
		return 0, "Window stats could not be read."
	}

	var reasons []string
	if s.BytesPerSec > 5e6 && s.PktsPerSec > 10000 {
		reasons = append(reasons, "bytes_per_sec and pkts_per_sec spike")
	}
	if s.SynRate > 200 {
		reasons = append(reasons, "elevated syn_rate")
	}
	if s.FailedConnRate > 0.3 {
		reasons = append(reasons, "high failed_conn_rate")
	}
	if len(reasons) == 0 {
		return 0, "All metrics near baseline; bytes_per_sec steady."
	}
	return 1, "Anomalous window: " + strings.Join(reasons, "; ") + "."
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
