package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/billing"
	"github.com/platinummonkey/gazette/pkg/httputil"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/middleware"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

// BillingHandlers handles the subscription catalog and the caller's
// subscription
type BillingHandlers struct {
	billing *billing.Service
	authz   *middleware.Authorizer
	audit   *auth.AuditLogger
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(billingService *billing.Service, authz *middleware.Authorizer, audit *auth.AuditLogger) *BillingHandlers {
	return &BillingHandlers{
		billing: billingService,
		authz:   authz,
		audit:   audit,
	}
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/subscription-types", h.listSubscriptionTypes).Methods("GET")

	// The purchase permission depends on what the purchase does, so it is
	// checked in the handler.
	router.Handle("/subscriptions", middleware.RequireSession(http.HandlerFunc(h.purchase))).Methods("POST")
	router.Handle("/subscriptions",
		h.authz.RequirePermission(rbac.ResourceSubscription, rbac.ActionCancel)(http.HandlerFunc(h.cancel)),
	).Methods("DELETE")
}

type purchaseRequest struct {
	Tier identity.Tier `json:"tier" validate:"required,oneof=Free Elite Business"`
}

func (h *BillingHandlers) listSubscriptionTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.billing.Catalog().List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, types)
}

func (h *BillingHandlers) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	uid := userID(r)

	event, err := h.billing.Classify(r.Context(), uid, req.Tier)
	if !h.writeBillingError(w, r, err) {
		return
	}

	// The grant depends on the event: a reader holds no subscription
	// grants, so Elite subscribers are refused every change here.
	if result := h.authz.Check(r, rbac.ResourceSubscription, event.Action()); !result.Allowed {
		_ = h.audit.LogFromRequest(r, auth.ActionPermissionDenied, "subscription", string(req.Tier), auth.StatusDenied, nil)
		middleware.WriteForbidden(w, result)
		return
	}

	result, err := h.billing.Purchase(r.Context(), uid, req.Tier)
	if !h.writeBillingError(w, r, err) {
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionSubscriptionChange, "subscription", result.Subscription.ID, auth.StatusSuccess, nil)
	_ = httputil.WriteCreated(w, result)
}

func (h *BillingHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Cancel(r.Context(), userID(r))
	if errors.Is(err, billing.ErrNoActiveSubscription) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = h.audit.LogFromRequest(r, auth.ActionSubscriptionCancel, "subscription", sub.ID, auth.StatusSuccess, nil)
	_ = httputil.WriteSuccess(w, sub)
}

// writeBillingError maps err onto a response and reports whether the
// handler may continue
func (h *BillingHandlers) writeBillingError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, billing.ErrUnknownTier):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	default:
		httputil.WriteInternalError(w, r, err)
	}
	return false
}
