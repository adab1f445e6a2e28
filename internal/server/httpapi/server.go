// Package httpapi serves the PrivCaster backend: identity and post documents
// over JSON/HTTP, routed with gorilla/mux.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/convert"
	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/limiter"
	"github.com/privcaster/privcaster/internal/repository"
)

const maxBody = 1 << 20

// DefaultOrigins are the web front-ends allowed by CORS besides *.vercel.app.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"https://priv-caster-bf5v.vercel.app",
	"https://priv-caster.vercel.app",
}

// Server wires repositories into HTTP handlers.
type Server struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	log        *zap.Logger
	ping       func(context.Context) error
	origins    []string
	limiter    limiter.Limiter
}

// New constructs the API. ping backs /healthz and may be nil.
func New(ids repository.IdentityRepository, posts repository.PostRepository, ping func(context.Context) error, origins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return &Server{identities: ids, posts: posts, ping: ping, origins: origins, log: log}
}

// WithLimiter throttles POST and DELETE requests per client IP.
func (s *Server) WithLimiter(l limiter.Limiter) *Server {
	s.limiter = l
	return s
}

// Router returns the mux with all routes and middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/identity", s.saveIdentity).Methods(http.MethodPost)
	r.HandleFunc("/identity/{address}", s.getIdentity).Methods(http.MethodGet)
	r.HandleFunc("/post", s.savePost).Methods(http.MethodPost)
	r.HandleFunc("/posts", s.listPosts).Methods(http.MethodGet)
	r.HandleFunc("/post/{id}", s.deletePost).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Use(s.recoverMW, s.loggingMW, s.limitMW)
	return r
}

// Handler is Router behind CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc:  s.allowOrigin,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.Router())
}

func (s *Server) allowOrigin(origin string) bool {
	if slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && strings.HasSuffix(u.Hostname(), ".vercel.app")
}

func (s *Server) saveIdentity(w http.ResponseWriter, r *http.Request) {
	var in convert.IdentityDoc
	if !s.decode(w, r, &in) {
		return
	}
	if in.Address == "" || in.Identity == nil {
		writeError(w, http.StatusBadRequest, "Missing address or identity")
		return
	}
	if b := in.Identity; b.ReputationScore > math.MaxInt64 || b.FollowerCount > math.MaxInt64 || b.FollowingCount > math.MaxInt64 {
		writeError(w, http.StatusBadRequest, "Identity counter out of range")
		return
	}
	stored, err := s.identities.Upsert(r.Context(), in.Address, convert.FromIdentityDoc(in))
	if errors.Is(err, errs.ErrValidation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.DocFromStoredIdentity(stored))
}

func (s *Server) getIdentity(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	stored, err := s.identities.Get(r.Context(), address)
	if errors.Is(err, errs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.DocFromStoredIdentity(*stored))
}

func (s *Server) savePost(w http.ResponseWriter, r *http.Request) {
	var in convert.PostDoc
	if !s.decode(w, r, &in) {
		return
	}
	if in.ID == "" {
		writeError(w, http.StatusBadRequest, "Missing post id")
		return
	}
	stored, err := s.posts.Upsert(r.Context(), convert.StoredPostFromDoc(in))
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.DocFromStoredPost(stored))
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context())
	if err != nil {
		s.internal(w, r, err)
		return
	}
	out := make([]convert.PostDoc, 0, len(posts))
	for _, p := range posts {
		out = append(out, convert.DocFromStoredPost(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	err := s.posts.Delete(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, errs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health check", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// internal logs err and answers 500 without leaking details.
func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, convert.ErrorDoc{Error: msg})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", sw.code),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", r.RemoteAddr),
		)
	})
}

func (s *Server) recoverMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// limitMW fails open: a limiter error is logged and the write proceeds.
func (s *Server) limitMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || (r.Method != http.MethodPost && r.Method != http.MethodDelete) {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait, err := s.limiter.Hit(r.Context(), limiter.HashIP(clientIP(r)))
		if err != nil {
			s.log.Warn("limiter", zap.Error(err))
		} else if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop set by the hosting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
