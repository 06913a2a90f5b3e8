package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ransomwatch/auth"
	"ransomwatch/database"
	"ransomwatch/models"
	"ransomwatch/reports"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newAPIHandler(store database.Store, authSvc *auth.Service, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", loginHandler(authSvc, log))
	mux.Handle("GET /api/stats", authSvc.Middleware(statsHandler(store, log)))
	mux.Handle("GET /api/posts", authSvc.Middleware(postsHandler(store, log)))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func loginHandler(authSvc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		token, expires, err := authSvc.Login(req.Username, req.Password)
		if err != nil {
			log.Warn().Str("username", req.Username).Msg("Rejected login")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, auth.Cookie(token, expires))
		writeJSON(w, log, loginResponse{Token: token, ExpiresAt: expires})
	}
}

func statsHandler(store database.Store, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		top := queryInt(r, "top", 5)
		summary, err := store.Stats(r.Context(), top)
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute stats")
			http.Error(w, "failed to load stats", http.StatusInternalServerError)
			return
		}

		data, err := reports.GenerateJSON(summary, time.Now())
		if err != nil {
			http.Error(w, "failed to encode stats", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

func postsHandler(store database.Store, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.PostFilter{
			Country:     q.Get("country"),
			ThreatActor: q.Get("actor"),
			Limit:       queryInt(r, "limit", 0),
		}
		if s := q.Get("sector"); s != "" {
			filter.Sector = models.ParseSector(s)
		}

		posts, err := store.ListPosts(r.Context(), filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list posts")
			http.Error(w, "failed to load posts", http.StatusInternalServerError)
			return
		}
		if posts == nil {
			posts = []models.Post{}
		}
		writeJSON(w, log, posts)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
