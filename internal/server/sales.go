package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukahub/dukahub/internal/authorization"
	salesdomain "github.com/dukahub/dukahub/internal/sales/domain"
	"github.com/dukahub/dukahub/pkg/db/pagination"
	"github.com/dukahub/dukahub/pkg/principal"
)

func (s *Server) CreateSale(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req salesdomain.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if !s.authorize(c, p, authorization.ActionSaleCreate, req.BranchID) {
		return
	}

	sale, err := s.salesSvc.CreateSale(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSaleCreated(string(sale.PaymentMethod))
	}
	c.JSON(http.StatusCreated, sale)
}

func (s *Server) ListSales(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	branchID, ok := queryID(c, "branch_id")
	if !ok {
		return
	}
	cashierID, ok := queryID(c, "cashier_id")
	if !ok {
		return
	}
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}

	req := salesdomain.ListSalesRequest{
		CashierID: cashierID,
		From:      from,
		To:        to,
		Page:      page,
	}
	if branchID != nil {
		req.BranchID = *branchID
	}

	action := authorization.ActionSaleViewAll
	if p.Role == principal.RoleStaff {
		action = authorization.ActionSaleViewOwn
	}
	if !s.authorize(c, p, action, req.BranchID) {
		return
	}

	sales, pageInfo, err := s.salesSvc.ListSales(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "page_info": pageInfo})
}

func (s *Server) GetSale(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	saleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sale, err := s.salesSvc.GetSale(c.Request.Context(), p, saleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (s *Server) MarkEmailSent(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	saleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.salesSvc.MarkEmailSent(c.Request.Context(), p, saleID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) MarkWhatsappSent(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	saleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.salesSvc.MarkWhatsappSent(c.Request.Context(), p, saleID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
