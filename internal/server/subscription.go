package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/dukahub/dukahub/internal/subscription/domain"
)

func (s *Server) SubscriptionStatus(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.subscriptionSvc.Status(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) InitializeSubscription(c *gin.Context) {
	p, _ := principalFrom(c)

	var req subscriptiondomain.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Initialize(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// VerifySubscription settles a pending reference. Any authenticated
// member may call it: the success redirect lands on whoever clicked
// pay, and repetition is safe.
func (s *Server) VerifySubscription(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		AbortWithError(c, subscriptiondomain.ErrInvalidReference)
		return
	}

	result, err := s.subscriptionSvc.Verify(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) AddBranchMidCycle(c *gin.Context) {
	p, _ := principalFrom(c)

	branchID, ok := pathID(c, "branchId")
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.AddBranchMidCycle(c.Request.Context(), p, branchID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	p, _ := principalFrom(c)

	if err := s.subscriptionSvc.Cancel(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	p, _ := principalFrom(c)

	if err := s.subscriptionSvc.Reactivate(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) EnableAutoRenewal(c *gin.Context) {
	p, _ := principalFrom(c)

	if err := s.subscriptionSvc.EnableAutoRenewal(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DisableAutoRenewal(c *gin.Context) {
	p, _ := principalFrom(c)

	if err := s.subscriptionSvc.DisableAutoRenewal(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
