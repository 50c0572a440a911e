package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

func (s *Server) GetTenant(c *gin.Context) {
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
	c.JSON(http.StatusOK, tenant)
}

func (s *Server) UpdateSettings(c *gin.Context) {
	p, _ := principalFrom(c)

	var req tenantdomain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.UpdateSettings(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (s *Server) ListBranches(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	branches, err := s.tenantSvc.ListBranches(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

// CreateBranch also backfills the new branch's stock rows; that happens
// inside the tenant service via the stock bootstrapper.
func (s *Server) CreateBranch(c *gin.Context) {
	p, _ := principalFrom(c)

	var req tenantdomain.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	branch, err := s.tenantSvc.CreateBranch(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, branch)
}

func (s *Server) ListMembers(c *gin.Context) {
	p, _ := principalFrom(c)

	members, err := s.tenantSvc.ListMembers(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) AddMember(c *gin.Context) {
	p, _ := principalFrom(c)

	var req tenantdomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.tenantSvc.AddMember(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) UpdateMember(c *gin.Context) {
	p, _ := principalFrom(c)

	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req tenantdomain.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.MemberID = memberID

	member, err := s.tenantSvc.UpdateMember(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (s *Server) DeactivateMember(c *gin.Context) {
	p, _ := principalFrom(c)

	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.tenantSvc.DeactivateMember(c.Request.Context(), p, memberID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
