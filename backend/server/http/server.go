package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adwski/signaling-relay/backend/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	maxRequestBodySize = 1 << 20
)

var (
	ErrUnexpected = errors.New("unexpected server error")
	ErrNoToken    = errors.New("bearer token is missing")
	ErrBadToken   = errors.New("invalid bearer token")
)

// Notifier is the part of the relay used by the REST layer.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conversationID string, message json.RawMessage) int
	Stats() model.Stats
}

type NewMessageRequest struct {
	Message json.RawMessage `json:"message"`
}

type NewMessageResponse struct {
	Recipients int `json:"recipients"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    Notifier
	secret []byte
	*http.Server
}

type Config struct {
	Logger   *zerolog.Logger
	Notifier Notifier
	// Secret is HMAC key for bearer tokens of REST layer. Empty secret disables auth.
	Secret     string
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.Notifier,
	}
	if cfg.Secret != "" {
		srv.secret = []byte(cfg.Secret)
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /api/conversations/{conversationID}/messages", srv.authenticated(srv.newMessage))
	r.HandleFunc("GET /api/health", srv.health)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	if srv.secret == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.verifyToken(r); err != nil {
			srv.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("unauthorized request")
			writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: err.Error()})
			return
		}
		next(w, r)
	}
}

func (srv *Server) verifyToken(r *http.Request) error {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ErrNoToken
	}
	token, err := jwt.Parse(strings.TrimSpace(authz[len("bearer "):]), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return srv.secret, nil
	})
	if err != nil {
		return errors.Join(ErrBadToken, err)
	}
	if !token.Valid {
		return ErrBadToken
	}
	return nil
}

func (srv *Server) newMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	conversationID := r.PathValue("conversationID")

	var req NewMessageRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: err.Error()})
		return
	}
	if err = json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "malformed request body"})
		return
	}

	srv.logger.Trace().
		Str("conversationID", conversationID).
		Int("size", len(req.Message)).
		Msg("got new message notification")

	n := srv.svc.NotifyNewMessage(r.Context(), conversationID, req.Message)
	writeJSON(w, http.StatusAccepted, &GenericResponse{
		Message: "OK",
		Data:    NewMessageResponse{Recipients: n},
	})
}

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, &GenericResponse{
		Message: "OK",
		Data:    srv.svc.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
