package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/infra/logging"
	red "streamboost-dashboard/internal/infra/redis"
	"streamboost-dashboard/internal/infra/sched"
)

func (s *Server) handleOpenView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.views.Open(r.Context(), viewer(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toViewDTO(sess.ID(), sess.Snapshot()))
}

// session resolves {viewID} for the current viewer, writing the error response on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*sched.ViewSession, bool) {
	viewID := chi.URLParam(r, "viewID")
	sess, err := s.views.Get(viewID, viewer(r))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(sess.ID(), sess.Snapshot()))
}

func (s *Server) handleCloseView(w http.ResponseWriter, r *http.Request) {
	if err := s.views.Close(chi.URLParam(r, "viewID"), viewer(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh reloads the view. A failed reload keeps the previous state and
// still returns it alongside the error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		code := statusFor(err)
		if code != http.StatusBadGateway {
			writeError(w, r, err)
			return
		}
		writeJSON(w, code, struct {
			errorBody
			View viewDTO `json:"view"`
		}{
			errorBody: errorBody{Error: domain.ErrFetch.Error(), TraceID: logging.TraceIDFrom(r.Context())},
			View:      toViewDTO(sess.ID(), sess.Snapshot()),
		})
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(sess.ID(), sess.Snapshot()))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		UpTo string `json:"upTo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.DismissNotices(r.Context(), req.UpTo); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(sess.ID(), sess.Snapshot()))
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := logging.WithViewID(r.Context(), sess.ID())
	orderID := chi.URLParam(r, "orderID")
	action := chi.URLParam(r, "action")

	var do func() error
	switch action {
	case "pause":
		do = func() error { return sess.Pause(ctx, orderID) }
	case "resume":
		do = func() error { return sess.Resume(ctx, orderID) }
	case "cancel":
		do = func() error { return sess.Cancel(ctx, orderID) }
	case "complete":
		do = func() error { return sess.Complete(ctx, orderID) }
	default:
		writeError(w, r, domain.ErrNotFound)
		return
	}

	if !s.allow(ctx, sess.Viewer(), action) {
		writeError(w, r, domain.ErrRateLimited)
		return
	}
	if err := do(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(sess.ID(), sess.Snapshot()))
}

// allow applies the per-viewer action limit. A limiter outage lets the action through.
func (s *Server) allow(ctx context.Context, v model.Viewer, action string) bool {
	if s.limiter == nil || s.rate.Actions <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, red.ViewerActionKey(v.UserID, "order_action"), s.rate.Actions, s.rate.Window)
	if err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
		return true
	}
	return ok
}
