package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	// Login implements the (credential, password, subdomain)
	// authentication flow. All credential failures collapse to
	// ErrInvalidCredentials; ErrUnknownTenant is returned only for a
	// missing subdomain because subdomains are public.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	// SwitchTenant re-points the session at the target tenant after
	// validating the switch rules against current memberships.
	SwitchTenant(ctx context.Context, rawToken string, targetTenantID snowflake.ID) (*SwitchResult, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
}

type CreateUserRequest struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

type LoginRequest struct {
	Credential string
	Password   string
	Subdomain  string
	UserAgent  string
	IPAddress  string
}

type LoginResult struct {
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
	User      *User
	Tenant    *tenantdomain.Tenant
	Principal principal.Principal
}

type SwitchResult struct {
	Tenant    *tenantdomain.Tenant
	Principal principal.Principal
}
