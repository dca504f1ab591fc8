package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gazette/pkg/auth"
	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
)

// DefaultTTL is the session lifetime when none is configured
const DefaultTTL = 7 * 24 * time.Hour

// Manager creates, reads and revokes sessions
type Manager struct {
	store     Store
	selector  *Selector
	augmentor *Augmentor
	orgs      identity.OrganizationStore
	ttl       time.Duration
	metrics   *observability.Metrics
	logger    *observability.Logger
	now       func() time.Time
}

// NewManager wires a session manager over the identity store
func NewManager(store Store, ids identity.Store, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:     store,
		selector:  NewSelector(ids, ids, ids, metrics, logger),
		augmentor: NewAugmentor(ids, ids, metrics, logger),
		orgs:      ids,
		ttl:       ttl,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source of the manager and its selector and
// augmentor.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.selector.now = now
	m.augmentor.now = now
}

// TTL returns the configured session lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create starts a session for an authenticated user. The active
// organization is chosen once here and stays fixed for the session's life.
func (m *Manager) Create(ctx context.Context, user *identity.User, meta Metadata) (created *Created, err error) {
	ctx, span := observability.Tracer().Start(ctx, "session.Create",
		trace.WithAttributes(attribute.String("gazette.user_id", user.ID)))
	defer func() {
		m.metrics.RecordSessionOperation("create", err)
		endSpan(span, err)
	}()

	token, err := auth.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:                   uuid.NewString(),
		UserID:               user.ID,
		TokenPrefix:          token.Prefix,
		ActiveOrganizationID: m.selector.Select(ctx, user.ID),
		IPAddress:            meta.IPAddress,
		UserAgent:            meta.UserAgent,
		CreatedAt:            now,
		ExpiresAt:            now.Add(m.ttl),
		TokenHash:            token.Hash,
	}
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"session_id": sess.ID,
	}).Info("session created")
	return &Created{Token: token.Value, Session: *sess}, nil
}

func (m *Manager) lookup(ctx context.Context, token string) (*Session, error) {
	if err := auth.CheckTokenFormat(token); err != nil {
		return nil, ErrSessionNotFound
	}
	sess, err := m.store.Get(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Get reads a session and augments it with the user's current role and
// subscription.
func (m *Manager) Get(ctx context.Context, token string) (payload *Payload, err error) {
	ctx, span := observability.Tracer().Start(ctx, "session.Get")
	defer func() {
		m.metrics.RecordSessionOperation("get", err)
		endSpan(span, err)
	}()

	sess, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gazette.user_id", sess.UserID))

	payload, err = m.augmentor.Augment(ctx, sess)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gazette.role", string(payload.User.Role)))
	return payload, nil
}

// Revoke ends the session identified by token
func (m *Manager) Revoke(ctx context.Context, token string) (err error) {
	defer func() { m.metrics.RecordSessionOperation("revoke", err) }()

	sess, err := m.lookup(ctx, token)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, sess.TokenHash); err != nil {
		return err
	}
	m.logger.WithField("session_id", sess.ID).Info("session revoked")
	return nil
}

// SetActiveOrganization switches the session to organizationID, which the
// user must belong to. An empty organizationID re-runs selection.
func (m *Manager) SetActiveOrganization(ctx context.Context, token, organizationID string) (sess *Session, err error) {
	ctx, span := observability.Tracer().Start(ctx, "session.SetActiveOrganization")
	defer func() {
		m.metrics.RecordSessionOperation("set_active_organization", err)
		endSpan(span, err)
	}()

	sess, err = m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	if organizationID == "" {
		sess.ActiveOrganizationID = m.selector.Select(ctx, sess.UserID)
	} else {
		membership, err := m.orgs.FindMembership(ctx, organizationID, sess.UserID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrNotMember
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load membership: %w", err)
		}
		id := membership.OrganizationID
		sess.ActiveOrganizationID = &id
	}

	if err := m.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListUserSessions returns the user's live sessions, newest first
func (m *Manager) ListUserSessions(ctx context.Context, userID string) (sessions []Session, err error) {
	defer func() { m.metrics.RecordSessionOperation("list", err) }()
	return m.store.ListByUser(ctx, userID)
}

// RevokeUserSessions ends every session of the user
func (m *Manager) RevokeUserSessions(ctx context.Context, userID string) (n int, err error) {
	defer func() { m.metrics.RecordSessionOperation("revoke_all", err) }()

	n, err = m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"count":   n,
	}).Info("user sessions revoked")
	return n, nil
}
