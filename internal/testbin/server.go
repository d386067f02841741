//go:build linux || darwin

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type queryHandler struct {
	log    zerolog.Logger
	chains map[string]bool
}

type query struct {
	Type   string          `json:"type"`
	Values []float64       `json:"values"`
	Value  json.RawMessage `json:"value"`
}

func writeResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *queryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	if !h.chains[chain] {
		writeResponse(w, http.StatusNotFound, map[string]string{"error": "unknown chain " + chain})
		return
	}

	var q query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid query: " + err.Error()})
		return
	}
	h.log.Debug().Msgf("query %s on %s", q.Type, chain)

	switch q.Type {
	case "sum":
		total := 0.0
		for _, v := range q.Values {
			total += v
		}
		writeResponse(w, http.StatusOK, total)
	case "echo":
		writeResponse(w, http.StatusOK, q.Value)
	case "config":
		writeResponse(w, http.StatusOK, map[string]any{
			"chain":   chain,
			"modules": []string{"main", "support"},
			"version": "0.13.5",
			"args":    map[string]any{"x": 123456, "y": "Hello!"},
		})
	default:
		writeResponse(w, http.StatusBadRequest, map[string]string{"error": "unknown query type " + q.Type})
	}
}

// server serves POST /query/{chain} on a random local port and announces
// the port on stdout. Arguments name the served chains.
func server(log zerolog.Logger, chains []string) int {
	if len(chains) == 0 {
		chains = []string{"iid_1"}
	}
	h := &queryHandler{log: log, chains: make(map[string]bool)}
	for _, c := range chains {
		h.chains[c] = true
	}

	router := mux.NewRouter()
	router.HandleFunc("/query/{chain}", h.handleQuery).Methods(http.MethodPost)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Error().Err(err).Msg("listen failed")
		return 1
	}
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info().Msgf("listening on port %d", ln.Addr().(*net.TCPAddr).Port)

	select {
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
			return 1
		}
		log.Info().Msg("stopped")
		return 0
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("serve failed")
			return 1
		}
		return 0
	}
}
