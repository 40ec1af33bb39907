// Package status serves the replica's external monitoring surface:
// a JSON snapshot of queue.Status and a Prometheus scrape endpoint,
// both behind a bearer-token check (spec §8 external interfaces).
// Routing follows the teacher pack's httprouter (julienschmidt/httprouter,
// named directly in AKJUS-bsc-erigon's go.mod); auth uses golang-jwt/jwt.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package status

import (
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/queue"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusProvider is the single method this package needs from the
// queue; kept narrow so tests can stub it without a live coordinator.
type StatusProvider interface {
	GetStatus() queue.Status
}

// Server wires a StatusProvider up to an HTTP handler. SigningKey
// verifies inbound bearer tokens; a nil/empty key disables auth (local
// dev, matching the teacher's permissive default when no token is
// configured).
type Server struct {
	Queue      StatusProvider
	SigningKey []byte
	Handler    http.Handler // e.g. promhttp.Handler() for /metrics
}

// Routes builds the router: GET /status (JSON queue.Status) and
// GET /metrics (the Prometheus handler passed in via Handler).
func (s *Server) Routes() http.Handler {
	r := httprouter.New()
	r.GET("/status", s.authWrap(s.handleStatus))
	if s.Handler != nil {
		r.GET("/metrics", s.authHandler(s.Handler))
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st := s.Queue.GetStatus()
	w.Header().Set("Content-Type", "application/json")
	if err := jsonAPI.NewEncoder(w).Encode(st); err != nil {
		nlog.Errorf("status: encoding response: %v", err)
	}
}

func (s *Server) authWrap(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) authHandler(next http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.SigningKey) == 0 {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	tokenStr := strings.TrimPrefix(auth, prefix)
	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.SigningKey, nil
	})
	return err == nil
}

// IssueToken mints a bearer token for an operator-facing CLI, signed
// with the same key the server validates against.
func IssueToken(signingKey []byte, subject string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	return tok.SignedString(signingKey)
}
