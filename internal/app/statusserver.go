package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pexa-ARavichandran/batect/internal/taskmachine"
)

// startStatusServer exposes the run's progress over plain HTTP, the push
// stream spec §6 asks for "to UI/log sinks": GET /events returns every
// event observed so far, GET /healthz is a liveness probe in the shape of
// the teacher's own health check endpoint (internal/app/healthcheck.go).
func (a *App) startStatusServer(port int, machine *taskmachine.Machine) {
	a.logger.Debug("configuring status server")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(machine.Events()); err != nil {
			a.logger.Error("failed to encode events", "error", err)
		}
	})

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{Addr: addr, Handler: mux}

	a.logger.Info("status server starting", "address", fmt.Sprintf("http://localhost%s", addr))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("status server failed unexpectedly", "error", err)
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("health check endpoint hit", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) closeStatusServer() error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(a.baseContext(), 5*time.Second)
	defer cancel()
	return a.httpServer.Shutdown(ctx)
}
