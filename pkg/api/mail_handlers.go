package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/notify"
)

// MailHandlers serves messages held by the preview notifier
type MailHandlers struct {
	previews *notify.PreviewNotifier
}

// NewMailHandlers creates a new MailHandlers
func NewMailHandlers(previews *notify.PreviewNotifier) *MailHandlers {
	return &MailHandlers{previews: previews}
}

// RegisterRoutes registers the preview route
func (h *MailHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dev/mail/{id}", h.getMessage).Methods("GET")
}

func (h *MailHandlers) getMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	msg, err := h.previews.Get(id)
	if errors.Is(err, notify.ErrMessageNotFound) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Mail-To", msg.To)
	w.Header().Set("X-Mail-Subject", msg.Subject)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg.HTML))
}
