// Package httpapi is the HTTP adapter over the domain stores. It owns
// routing, request parsing, and the error-to-status mapping; all
// domain rules live in the stores.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/authz"
	"github.com/subit-dev/posterd/internal/server/images"
	"github.com/subit-dev/posterd/internal/server/posts"
)

// Server serves the public API.
type Server struct {
	addr     string
	secret   []byte
	router   *mux.Router
	logger   logging.Logger
	accounts *accounts.Store
	posts    *posts.Store
	images   *images.Cache
	gate     *authz.Gate
}

func NewServer(addr string, secret []byte, logger logging.Logger, as *accounts.Store, ps *posts.Store, ic *images.Cache, gate *authz.Gate) *Server {
	s := &Server{
		addr:     addr,
		secret:   secret,
		logger:   logger.With("component", "httpapi"),
		accounts: as,
		posts:    ps,
		images:   ic,
		gate:     gate,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/account/create", s.handleAccountCreate).Methods("POST")
	api.HandleFunc("/account/verify", s.handleAccountVerify).Methods("POST")
	api.HandleFunc("/account/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/account/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/account/signout", s.handleSignOut).Methods("POST")
	api.HandleFunc("/account/view", s.handleAccountView).Methods("GET")
	api.HandleFunc("/account/edit", s.handleAccountEdit).Methods("POST")
	api.HandleFunc("/account/reset-password", s.handleResetRequest).Methods("POST")
	api.HandleFunc("/account/reset-password/confirm", s.handleResetConfirm).Methods("POST")

	api.HandleFunc("/account/manage/create", s.handleManageCreate).Methods("POST")
	api.HandleFunc("/account/manage/view", s.handleManageView).Methods("POST")
	api.HandleFunc("/account/manage/modify", s.handleManageModify).Methods("POST")

	api.HandleFunc("/post/upload-image", s.handleUploadImage).Methods("POST")
	api.HandleFunc("/post/get-image/{hash}", s.handleGetImage).Methods("GET")
	api.HandleFunc("/post/create", s.handlePostCreate).Methods("POST")
	api.HandleFunc("/post/get", s.handlePostQuery).Methods("POST")
	api.HandleFunc("/post/get-info", s.handlePostInfo).Methods("POST")
	api.HandleFunc("/post/edit", s.handlePostEdit).Methods("POST")
	api.HandleFunc("/post/approve", s.handlePostApprove).Methods("POST")

	return r
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info(ctx, "http server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates domain errors to response codes. The stores
// never see HTTP concerns.
func writeError(w http.ResponseWriter, err error) {
	var inStatus *common.AlreadyInStatusError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrImageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrConflict),
		errors.Is(err, common.ErrUserAlreadyRegistered):
		status = http.StatusConflict
	case errors.Is(err, common.ErrPermissionDenied),
		errors.Is(err, common.ErrUserUnverified),
		errors.Is(err, common.ErrEmailDomainNotAllowed),
		errors.As(err, &inStatus):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrPasswordIncorrect),
		errors.Is(err, common.ErrTokenIncorrect):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrVerificationCodeMismatch),
		errors.Is(err, common.ErrDateOutOfRange),
		errors.Is(err, common.ErrRejectMessage),
		errors.Is(err, common.ErrImageDecode),
		errors.Is(err, common.ErrVerifyPending):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}
