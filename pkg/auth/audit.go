package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/gazette/pkg/observability"
)

// AuditEvent is one security-relevant action
type AuditEvent struct {
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Action         string    `json:"action"`
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditLogger writes audit events to the structured log
type AuditLogger struct {
	logger  *observability.Logger
	proxies *TrustedProxies
	now     func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	return &AuditLogger{logger: logger, now: time.Now}
}

// SetTrustedProxies sets the proxies whose forwarding headers are used for
// recorded client addresses
func (al *AuditLogger) SetTrustedProxies(proxies *TrustedProxies) {
	al.proxies = proxies
}

// ClientIP returns the client address recorded for r
func (al *AuditLogger) ClientIP(r *http.Request) string {
	return al.proxies.ClientIP(r)
}

// LogAction records an audit event
func (al *AuditLogger) LogAction(ctx context.Context, event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.ResourceType == "" {
		return fmt.Errorf("resource_type is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}

	event.CreatedAt = al.now()

	fields := map[string]interface{}{
		"audit":         true,
		"action":        event.Action,
		"resource_type": event.ResourceType,
		"status":        event.Status,
	}
	if event.UserID != "" {
		fields["actor_id"] = event.UserID
	}
	if event.OrganizationID != "" {
		fields["organization_id"] = event.OrganizationID
	}
	if event.ResourceID != "" {
		fields["resource_id"] = event.ResourceID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}
	if event.ErrorMessage != "" {
		fields["error_message"] = event.ErrorMessage
	}

	logger := al.logger
	if id := observability.GetRequestID(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}
	logger.WithFields(fields).Info("audit")
	return nil
}

// LogFromRequest records an audit event for the request's caller
func (al *AuditLogger) LogFromRequest(r *http.Request, action, resourceType, resourceID, status string, err error) error {
	event := &AuditEvent{
		UserID:       observability.GetUserID(r.Context()),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    al.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Status:       status,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return al.LogAction(r.Context(), event)
}

// Audit actions
const (
	ActionSignup             = "auth.signup"
	ActionLogin              = "auth.login"
	ActionLogout             = "auth.logout"
	ActionSessionRevoke      = "session.revoke"
	ActionActiveOrgSwitch    = "session.active-organization"
	ActionUserSetRole        = "user.set-role"
	ActionOrgCreate          = "organization.create"
	ActionOrgMemberAdd       = "organization.member.add"
	ActionOrgDelete          = "organization.delete"
	ActionSubscriptionChange = "subscription.change"
	ActionSubscriptionCancel = "subscription.cancel"
	ActionPermissionDenied   = "permission.denied"
	ActionRateLimitExceeded  = "ratelimit.exceeded"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
