// Package httpapi is the REST snapshot interface: pure reads (plus the bulk
// read-state PATCH) that clients use to bootstrap after a reload or
// reconnect, reflecting every write that completed before the request.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/lancera/courier/internal/identity"
	"github.com/lancera/courier/internal/registry"
	"github.com/lancera/courier/internal/relay"
	"github.com/lancera/courier/internal/status"
	"github.com/lancera/courier/internal/store"
	"github.com/lancera/courier/internal/wire"
	"go.uber.org/zap"
)

type callerKey struct{}

// Server holds the REST handlers and their dependencies.
type Server struct {
	db       *store.DB
	resolver *identity.Resolver
	router   *relay.Router
	reg      *registry.Registry
	machine  *status.Machine
	logger   *zap.Logger
}

// NewServer creates the REST facade.
func NewServer(db *store.DB, resolver *identity.Resolver, router *relay.Router,
	reg *registry.Registry, machine *status.Machine, logger *zap.Logger) *Server {
	return &Server{
		db:       db,
		resolver: resolver,
		router:   router,
		reg:      reg,
		machine:  machine,
		logger:   logger,
	}
}

// Routes builds the full HTTP router, mounting the live channel handler at
// /ws alongside the REST surface.
func (s *Server) Routes(ws http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/messages", s.requireAuth(s.handleHistory)).Methods("GET")
	r.HandleFunc("/messages", s.requireAuth(s.handleMarkRead)).Methods("PATCH")
	r.HandleFunc("/messages/unreadCount", s.requireAuth(s.handleUnreadCount)).Methods("GET")
	r.HandleFunc("/messages/{sender}/{receiver}", s.requireAuth(s.handlePairHistory)).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	if ws != nil {
		r.Handle("/ws", ws).Methods("GET")
	}

	return r
}

// requireAuth resolves the caller identity from the Authorization header.
// The caller ID always comes from the verified token, never from request
// parameters.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.resolver.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, userID)
		next(w, r.WithContext(ctx))
	}
}

func caller(r *http.Request) string {
	userID, _ := r.Context().Value(callerKey{}).(string)
	return userID
}

// handleHistory: GET /messages — full participant history plus derived
// per-counterparty unread counts, for the conversation-list bootstrap.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)

	msgs, err := s.db.ListForParticipant(userID)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err), zap.String("user", userID))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	counts, err := s.db.UnreadBySender(userID)
	if err != nil {
		s.logger.Error("unread query failed", zap.Error(err), zap.String("user", userID))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages":     wire.FromStoreSlice(msgs),
		"receiver":     userID,
		"unreadCounts": counts,
	})
}

// handleUnreadCount: GET /messages/unreadCount — the badge number.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)

	count, err := s.db.CountUnread(userID)
	if err != nil {
		s.logger.Error("unread count failed", zap.Error(err), zap.String("user", userID))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"unreadCount": count})
}

// handlePairHistory: GET /messages/{sender}/{receiver} — targeted history
// for one conversation. The path names are a filter; the caller must be one
// of the two participants.
func (s *Server) handlePairHistory(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)
	vars := mux.Vars(r)
	sender, receiver := vars["sender"], vars["receiver"]

	if userID != sender && userID != receiver {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	msgs, err := s.db.ListBetween(sender, receiver)
	if err != nil {
		s.logger.Error("pair history failed", zap.Error(err), zap.String("user", userID))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, wire.FromStoreSlice(msgs))
}

// handleMarkRead: PATCH /messages — bulk mark sender→receiver as read.
// Only the receiver of a backlog may clear it.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)

	var body struct {
		Sender   string `json:"sender"`
		Receiver string `json:"receiver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Receiver != userID {
		writeError(w, http.StatusForbidden, "only the receiver may mark messages read")
		return
	}

	modified, err := s.router.MarkConversationRead(userID, body.Sender)
	if err != nil {
		if relay.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("mark read failed", zap.Error(err), zap.String("user", userID))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"modified": modified})
}

// handleHealth: GET /healthz — runtime state and live connection count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      s.machine.Current(),
		"connections": s.reg.Count(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
