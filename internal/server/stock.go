package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dukahub/dukahub/internal/authorization"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	"github.com/dukahub/dukahub/pkg/db/pagination"
)

type receiveStockRequest struct {
	BranchID  string `json:"branch_id"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
	Reference string `json:"reference"`
}

type adjustStockRequest struct {
	BranchID  string `json:"branch_id"`
	ProductID string `json:"product_id" binding:"required"`
	Delta     int64  `json:"delta" binding:"required"`
	Reference string `json:"reference"`
}

// ReceiveStock is the positive movement path: goods arriving at the
// branch.
func (s *Server) ReceiveStock(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req receiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	movement, ok := s.bindMovement(c, req.BranchID, req.ProductID, req.Quantity, stockdomain.ReasonReceive, req.Reference)
	if !ok {
		return
	}
	if !s.authorize(c, p, authorization.ActionStockEdit, movement.BranchID) {
		return
	}

	stock, err := s.stockSvc.ApplyMovement(c.Request.Context(), p, movement)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordStockMovement(string(stockdomain.ReasonReceive))
	}
	c.JSON(http.StatusOK, stock)
}

// AdjustStock applies a signed correction.
func (s *Server) AdjustStock(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	movement, ok := s.bindMovement(c, req.BranchID, req.ProductID, req.Delta, stockdomain.ReasonAdjust, req.Reference)
	if !ok {
		return
	}
	if !s.authorize(c, p, authorization.ActionStockEdit, movement.BranchID) {
		return
	}

	stock, err := s.stockSvc.ApplyMovement(c.Request.Context(), p, movement)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordStockMovement(string(stockdomain.ReasonAdjust))
	}
	c.JSON(http.StatusOK, stock)
}

func (s *Server) bindMovement(c *gin.Context, rawBranchID, rawProductID string, delta int64, reason stockdomain.MovementReason, reference string) (stockdomain.ApplyMovementRequest, bool) {
	var req stockdomain.ApplyMovementRequest

	if rawBranchID != "" {
		branchID, err := parseTenantID(rawBranchID)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return req, false
		}
		req.BranchID = branchID
	}

	productID, err := parseTenantID(rawProductID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}

	req.ProductID = productID
	req.Delta = delta
	req.Reason = reason
	req.Reference = reference
	return req, true
}

func (s *Server) ListMovements(c *gin.Context) {
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
	productID, ok := queryID(c, "product_id")
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

	req := stockdomain.ListMovementsRequest{
		ProductID: productID,
		From:      from,
		To:        to,
		Page:      page,
	}
	if branchID != nil {
		req.BranchID = *branchID
	}

	movements, pageInfo, err := s.stockSvc.ListMovements(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "page_info": pageInfo})
}

func (s *Server) LowStock(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	branchID, ok := queryID(c, "branch_id")
	if !ok {
		return
	}

	var target = p.TenantID
	if branchID != nil {
		target = *branchID
	}

	rows, err := s.stockSvc.LowStock(c.Request.Context(), p, target)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"low_stock": rows})
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return nil, false
	}
	return &t, true
}
