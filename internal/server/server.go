// Package server exposes a read-only JSON view of accounts, their open slots
// and their rendered clips.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clipsync/internal/account"
	"clipsync/internal/clip"
	"clipsync/internal/runner"
)

// Accounts reads stored accounts. storage.Store implements it.
type Accounts interface {
	Load(ctx context.Context, id string) (*account.Account, error)
	List(ctx context.Context) ([]string, error)
}

// Clips lists rendered clips. *clip.Library implements it.
type Clips interface {
	List(accountID string) ([]clip.Rendered, error)
}

// Planner computes a dry-run plan. *runner.Runner implements it.
type Planner interface {
	Plan(ctx context.Context, id string) (*runner.Plan, error)
}

// Handler serves the status API.
type Handler struct {
	accounts Accounts
	clips    Clips
	planner  Planner
	logger   *slog.Logger
}

func NewHandler(accounts Accounts, clips Clips, planner Planner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{accounts: accounts, clips: clips, planner: planner, logger: logger}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getAccount)
			r.Get("/slots", h.getSlots)
			r.Get("/clips", h.getClips)
		})
	})
	return r
}

// Serve runs the API on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("status API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type accountView struct {
	ID          string                 `json:"id"`
	Channels    []string               `json:"channels"`
	Schedule    []string               `json:"schedule"`
	Preferences account.Preferences    `json:"preferences"`
	History     []account.HistoryEntry `json:"history"`
	HasSession  bool                   `json:"has_session"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// newAccountView drops the session cookies.
func newAccountView(a *account.Account) accountView {
	return accountView{
		ID:          a.ID,
		Channels:    a.Channels,
		Schedule:    a.Schedule,
		Preferences: a.Preferences,
		History:     a.History,
		HasSession:  a.HasSession(),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type accountSummary struct {
	ID            string     `json:"id"`
	Schedule      []string   `json:"schedule"`
	Channels      int        `json:"channels"`
	Posted        int        `json:"posted"`
	RenderedClips int        `json:"rendered_clips"`
	LastPosted    *time.Time `json:"last_posted,omitempty"`
}

type slotView struct {
	Slot time.Time `json:"slot"`
	Clip *clipView `json:"clip,omitempty"`
}

type clipView struct {
	ContentID string `json:"content_id"`
	Part      int    `json:"part"`
	Label     int    `json:"label"`
	File      string `json:"file"`
}

func newClipView(c clip.Rendered) clipView {
	return clipView{ContentID: c.ContentID, Part: c.Part, Label: c.Label(), File: c.Filename()}
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.accounts.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]accountSummary, 0, len(ids))
	for _, id := range ids {
		acct, err := h.accounts.Load(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		clips, err := h.clips.List(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		s := accountSummary{
			ID:            acct.ID,
			Schedule:      acct.Schedule,
			Channels:      len(acct.Channels),
			Posted:        len(acct.History),
			RenderedClips: len(clips),
		}
		if last, ok := acct.LastEntry(); ok {
			s.LastPosted = &last.Timestamp
		}
		out = append(out, s)
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, newAccountView(acct))
}

func (h *Handler) getSlots(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.Plan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]slotView, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		v := slotView{Slot: e.Slot}
		if e.Clip != nil {
			c := newClipView(*e.Clip)
			v.Clip = &c
		}
		out = append(out, v)
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"slots":         out,
		"needs_content": plan.NeedsContent(),
	})
}

func (h *Handler) getClips(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.accounts.Load(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	clips, err := h.clips.List(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]clipView, 0, len(clips))
	for _, c := range clips {
		out = append(out, newClipView(c))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, status, code, msg)
}
