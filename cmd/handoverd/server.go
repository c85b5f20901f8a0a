package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/handover"
	"github.com/arloliu/handover/trigger"
)

// server exposes a Controller over HTTP.
type server struct {
	ctrl      *handover.Controller
	boot      *urlBootstrapper
	presenter *logPresenter
	env       *hostEnvironment
	gatherer  prometheus.Gatherer
	logger    handover.Logger
}

type stateResponse struct {
	handover.Snapshot
	Presenter presenterView `json:"presenter"`
}

func (s *server) routes() (http.Handler, error) {
	full, err := url.Parse(s.ctrl.Config().Full.BaseURL)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(full)
	proxy.Transport = s.ctrl.Transport()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/hooks", func(r chi.Router) {
		r.Post("/level/{level}", s.handleLevel)
		r.Post("/complete", s.handleComplete)
		r.Post("/progress/{fraction}", s.handleProgress)
		r.Post("/idle/{ms}", s.handleIdle)
		r.Post("/visibility/{state}", s.handleVisibility)
		r.Post("/message", s.handleMessage)
		r.Post("/log", s.handleLog)
	})
	r.Post("/switch", s.handleSwitch)
	r.Get("/state", s.handleState)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Handle("/full/*", http.StripPrefix("/full", proxy))

	return r, nil
}

func (s *server) handleLevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil || level < 0 {
		http.Error(w, "invalid level", http.StatusBadRequest)
		return
	}

	s.ctrl.LevelReached(level)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleComplete(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Complete()
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	fraction, err := strconv.ParseFloat(chi.URLParam(r, "fraction"), 64)
	if err != nil || fraction < 0 || fraction > 1 {
		http.Error(w, "invalid fraction", http.StatusBadRequest)
		return
	}

	if !s.boot.Progress(handover.VariantLite, fraction) {
		http.Error(w, "lite variant not launched", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleIdle(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(chi.URLParam(r, "ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid idle window", http.StatusBadRequest)
		return
	}

	s.ctrl.ReportIdle(time.Duration(ms) * time.Millisecond)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "state") {
	case "hidden":
		s.env.hidden.Store(true)
	case "visible":
		s.env.hidden.Store(false)
	default:
		http.Error(w, "state must be hidden or visible", http.StatusBadRequest)
		return
	}

	if t := r.URL.Query().Get("network"); t != "" {
		s.env.network.Store(handover.NetworkInfo{
			EffectiveType: t,
			SaveData:      r.URL.Query().Get("saveData") == "true",
		})
	}

	s.logger.Debug("environment changed", "environment", s.env.String())
	s.ctrl.VisibilityChanged()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg handover.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	err := s.ctrl.HandleMessage(r.Header.Get("Origin"), msg)
	switch {
	case errors.Is(err, handover.ErrOriginRejected):
		http.Error(w, err.Error(), http.StatusForbidden)
	case err != nil:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// handleLog scans console output of the lite variant, one line per row, for
// reached levels.
func (s *server) handleLog(w http.ResponseWriter, r *http.Request) {
	scanner := bufio.NewScanner(http.MaxBytesReader(w, r.Body, 1<<20))

	highest := 0
	for scanner.Scan() {
		if level, ok := trigger.LevelFromLog(scanner.Text()); ok && level > highest {
			highest = level
		}
	}
	if err := scanner.Err(); err != nil {
		http.Error(w, "invalid log", http.StatusBadRequest)
		return
	}

	if highest > 0 {
		s.ctrl.LevelReached(highest)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual"
	}

	if err := s.ctrl.RequestSwitch(r.Context(), reason); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stateResponse{
		Snapshot:  s.ctrl.Snapshot(),
		Presenter: s.presenter.view(),
	})
}
