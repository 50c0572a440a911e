package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukahub/dukahub/internal/authorization"
	reportingdomain "github.com/dukahub/dukahub/internal/reporting/domain"
)

func (s *Server) Dashboard(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	branchID, ok := queryID(c, "branch_id")
	if !ok {
		return
	}

	req := reportingdomain.DashboardRequest{
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
	}
	if branchID != nil {
		req.BranchID = *branchID
	}

	if !s.authorize(c, p, authorization.ActionDashboardView, req.BranchID) {
		return
	}

	dashboard, err := s.reportingSvc.Dashboard(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (s *Server) PriceVariance(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	branchID, ok := queryID(c, "branch_id")
	if !ok {
		return
	}

	dimension := reportingdomain.VarianceDimension(c.DefaultQuery("dimension", string(reportingdomain.DimensionProduct)))
	req := reportingdomain.VarianceRequest{
		Dimension: dimension,
		FromDate:  c.Query("from"),
		ToDate:    c.Query("to"),
	}
	if branchID != nil {
		req.BranchID = *branchID
	}

	if !s.authorize(c, p, authorization.ActionReportsView, req.BranchID) {
		return
	}

	rows, err := s.reportingSvc.PriceVariance(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}
