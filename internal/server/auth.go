package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	authdomain "github.com/dukahub/dukahub/internal/auth/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

type LoginRequest struct {
	Credential string `json:"credential" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Subdomain  string `json:"subdomain" binding:"required"`
}

type RegisterRequest struct {
	Name      string  `json:"name" binding:"required"`
	Subdomain string  `json:"subdomain" binding:"required"`
	Currency  string  `json:"currency"`
	TaxRate   float64 `json:"tax_rate"`
	Timezone  string  `json:"timezone"`

	OwnerUsername    string `json:"owner_username" binding:"required"`
	OwnerEmail       string `json:"owner_email" binding:"required"`
	OwnerPassword    string `json:"owner_password" binding:"required"`
	OwnerDisplayName string `json:"owner_display_name"`
}

type sessionView struct {
	Tenant *tenantdomain.Tenant `json:"tenant"`
	User   principalView        `json:"user"`
}

type principalView struct {
	ID             string `json:"id"`
	RoleType       string `json:"role_type"`
	PinnedBranchID string `json:"pinned_branch_id,omitempty"`
}

func viewOf(p principal.Principal) principalView {
	v := principalView{
		ID:       p.UserID.String(),
		RoleType: string(p.Role),
	}
	if p.PinnedBranchID != nil {
		v.PinnedBranchID = p.PinnedBranchID.String()
	}
	return v
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Credential: strings.TrimSpace(req.Credential),
		Password:   req.Password,
		Subdomain:  strings.ToLower(strings.TrimSpace(req.Subdomain)),
		UserAgent:  c.Request.UserAgent(),
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLoginFailure()
		}
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)

	c.JSON(http.StatusOK, sessionView{
		Tenant: result.Tenant,
		User:   viewOf(result.Principal),
	})
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	tenant, err := s.tenantSvc.Get(c.Request.Context(), p, p.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.authsvc.GetUser(c.Request.Context(), p.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant": tenant,
		"user": gin.H{
			"id":           user.ID.String(),
			"username":     user.Username,
			"email":        user.Email,
			"display_name": user.DisplayName,
		},
		"role_type":        p.Role,
		"pinned_branch_id": p.PinnedBranchID,
	})
}

// SwitchTenant re-points the session at the target tenant. The switch
// rules live in the auth service; a forbidden switch leaves the session
// untouched.
func (s *Server) SwitchTenant(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	targetID, ok := pathID(c, "tenantId")
	if !ok {
		return
	}

	result, err := s.authsvc.SwitchTenant(c.Request.Context(), token, targetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionView{
		Tenant: result.Tenant,
		User:   viewOf(result.Principal),
	})
}

// RegisterOrganization is the public signup: a new user plus a new
// organization owned by that user.
func (s *Server) RegisterOrganization(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	user, err := s.authsvc.CreateUser(ctx, authdomain.CreateUserRequest{
		Username:    strings.TrimSpace(req.OwnerUsername),
		Email:       strings.ToLower(strings.TrimSpace(req.OwnerEmail)),
		Password:    req.OwnerPassword,
		DisplayName: strings.TrimSpace(req.OwnerDisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.tenantSvc.RegisterOrganization(ctx, tenantdomain.RegisterOrganizationRequest{
		Name:        strings.TrimSpace(req.Name),
		Subdomain:   strings.ToLower(strings.TrimSpace(req.Subdomain)),
		OwnerEmail:  user.Email,
		OwnerUserID: user.ID,
		Currency:    req.Currency,
		TaxRate:     req.TaxRate,
		Timezone:    req.Timezone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	orgID, parseErr := parseTenantID(org.ID)
	if parseErr != nil {
		AbortWithError(c, parseErr)
		return
	}
	if err := s.catalogSvc.EnsureDefaults(ctx, orgID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, org)
}
