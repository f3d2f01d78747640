package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"coinwatch/internal/engine"
	"coinwatch/internal/poll"
	"coinwatch/internal/provider"
	"coinwatch/internal/viewstate"
)

const refreshTimeout = 15 * time.Second

type api struct {
	eng           *engine.Engine
	logger        *slog.Logger
	streams       *streamHub
	allowedOrigin string
}

func newAPI(eng *engine.Engine, logger *slog.Logger, allowedOrigin string) *api {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &api{
		eng:           eng,
		logger:        logger,
		streams:       newStreamHub(eng, logger, allowedOrigin),
		allowedOrigin: allowedOrigin,
	}
}

// Handler returns the routed API wrapped in the standard middleware chain.
func (a *api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/prices", a.handlePrices)
	mux.HandleFunc("POST /api/prices/reset", a.handleResetPrices)
	mux.HandleFunc("GET /api/view", a.handleView)
	mux.HandleFunc("POST /api/view/navigate", a.handleNavigate)
	mux.HandleFunc("POST /api/view/theme", a.handleTheme)
	mux.HandleFunc("POST /api/refresh", a.handleRefresh)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/stream", a.streams.ServeHTTP)

	return withJSONHeaders(a.allowedOrigin, withGzip(recoverPanic(a.logger, limitBody(mux))))
}

func (a *api) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Board())
}

// handleResetPrices forgets every cached price; the next cycle refills them.
func (a *api) handleResetPrices(w http.ResponseWriter, _ *http.Request) {
	a.eng.ResetPrices()
	a.logger.Info("price cache reset")
	writeJSON(w, http.StatusOK, a.eng.Board())
}

func (a *api) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.View())
}

type navigateBody struct {
	Page string `json:"page"`
}

func (a *api) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var b navigateBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.eng.NavigateTo(b.Page); err != nil {
		if errors.Is(err, viewstate.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.eng.View())
}

func (a *api) handleTheme(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.ToggleTheme())
}

type refreshError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	err := a.eng.Refresh(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, a.eng.Board())
	case errors.Is(err, poll.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case ctx.Err() != nil:
		writeJSON(w, http.StatusGatewayTimeout, refreshError{Error: err.Error(), Kind: provider.KindTimeout.String()})
	default:
		writeJSON(w, http.StatusBadGateway, refreshError{Error: err.Error(), Kind: provider.KindOf(err).String()})
	}
}

type statusResponse struct {
	Poller  poll.Stats `json:"poller"`
	Prices  int        `json:"prices"`
	Assets  int        `json:"assets"`
	Streams int        `json:"streams"`
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Poller:  a.eng.Stats(),
		Prices:  len(a.eng.Snapshot()),
		Assets:  len(a.eng.Assets()),
		Streams: a.streams.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
