package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/dukahub/dukahub/internal/auth/domain"
	"github.com/dukahub/dukahub/internal/auth/password"
	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/observability/metrics"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/db"
)

const sessionTTL = 7 * 24 * time.Hour

// dummyHash keeps password verification constant-time when the
// credential does not resolve to a user.
var dummyHash, _ = password.Hash("dukahub-dummy-credential")

type service struct {
	repo       domain.Repository
	sessions   domain.SessionRepository
	tenants    tenantdomain.Service
	tenantRepo tenantdomain.Repository
	genID      *snowflake.Node
	clk        clock.Clock
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewService(
	repo domain.Repository,
	sessions domain.SessionRepository,
	tenants tenantdomain.Service,
	tenantRepo tenantdomain.Repository,
	genID *snowflake.Node,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &service{
		repo:       repo,
		sessions:   sessions,
		tenants:    tenants,
		tenantRepo: tenantRepo,
		genID:      genID,
		clk:        clk,
		metrics:    m,
		log:        log.Named("auth"),
	}
}

func (s *service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" && email != "" {
		username = email
	}
	if username == "" {
		return nil, domain.ErrUserNotFound
	}
	if len(req.Password) < 8 {
		return nil, domain.ErrWeakPassword
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	user := domain.User{
		ID:           s.genID.Generate(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	subdomain := strings.TrimSpace(req.Subdomain)
	if subdomain == "" {
		return nil, domain.ErrUnknownTenant
	}
	tenant, err := s.tenantRepo.GetTenantBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrTenantNotFound) {
			return nil, domain.ErrUnknownTenant
		}
		return nil, err
	}

	user, err := s.repo.FindByCredential(ctx, req.Credential)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Burn the same hashing cost as a real verification.
			password.Verify(req.Password, dummyHash)
			s.metrics.RecordLoginFailure()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		s.metrics.RecordLoginFailure()
		return nil, domain.ErrInvalidCredentials
	}

	// Membership and suspension checks come after the credential
	// check so their errors cannot be used to probe passwords.
	prin, err := s.tenants.ResolvePrincipal(ctx, user.ID, tenant.ID)
	if err != nil {
		return nil, err
	}

	rawToken, tokenHash, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	session := domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		TenantID:         tenant.ID,
		SessionTokenHash: tokenHash,
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessions.CreateSession(ctx, &session); err != nil {
		return nil, err
	}

	s.log.Info("login",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("role_type", string(prin.Role)),
	)

	return &domain.LoginResult{
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
		User:      user,
		Tenant:    tenant,
		Principal: *prin,
	}, nil
}

func (s *service) Logout(ctx context.Context, rawToken string) error {
	session, err := s.lookupSession(ctx, rawToken)
	if err != nil {
		return err
	}
	return s.sessions.RevokeSession(ctx, session.ID, s.clk.Now())
}

func (s *service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.lookupSession(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	// Best effort; authentication does not fail on a bookkeeping miss.
	if err := s.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		s.log.Warn("update last seen failed", zap.Error(err))
	}
	return session, nil
}

func (s *service) SwitchTenant(ctx context.Context, rawToken string, targetTenantID snowflake.ID) (*domain.SwitchResult, error) {
	session, err := s.Authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	prin, err := s.tenants.SwitchTenant(ctx, session.UserID, session.TenantID, targetTenantID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateTenant(ctx, session.ID, targetTenantID); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.GetTenant(ctx, targetTenantID)
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant switched",
		zap.String("user_id", session.UserID.String()),
		zap.String("from_tenant_id", session.TenantID.String()),
		zap.String("to_tenant_id", targetTenantID.String()),
	)

	return &domain.SwitchResult{
		Tenant:    tenant,
		Principal: *prin,
	}, nil
}

func (s *service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) lookupSession(ctx context.Context, rawToken string) (*domain.Session, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidSession
	}
	return s.sessions.GetSessionByTokenHash(ctx, hashToken(rawToken))
}

func newSessionToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
