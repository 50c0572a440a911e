package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
)

func (s *Server) ListProducts(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	branchViewID, ok := queryID(c, "branch_view")
	if !ok {
		return
	}
	categoryID, ok := queryID(c, "category_id")
	if !ok {
		return
	}

	products, err := s.catalogSvc.ListProducts(c.Request.Context(), p, catalogdomain.ListProductsRequest{
		BranchViewID:       branchViewID,
		Search:             strings.TrimSpace(c.Query("search")),
		CategoryID:         categoryID,
		IncludeUnavailable: c.Query("include_unavailable") == "true",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) CreateProduct(c *gin.Context) {
	p, _ := principalFrom(c)

	var req catalogdomain.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	product, err := s.catalogSvc.CreateProduct(c.Request.Context(), p, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (s *Server) GetProduct(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := s.catalogSvc.GetProduct(c.Request.Context(), p, productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) UpdateProduct(c *gin.Context) {
	p, _ := principalFrom(c)

	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req catalogdomain.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	product, err := s.catalogSvc.UpdateProduct(c.Request.Context(), p, productID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) DeactivateProduct(c *gin.Context) {
	p, _ := principalFrom(c)

	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.catalogSvc.DeactivateProduct(c.Request.Context(), p, productID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListCategories(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	categories, err := s.catalogSvc.GetCategories(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) CreateCategory(c *gin.Context) {
	p, _ := principalFrom(c)

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	category, err := s.catalogSvc.CreateCategory(c.Request.Context(), p, strings.TrimSpace(req.Name))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (s *Server) ListUnits(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	units, err := s.catalogSvc.GetUnits(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": units})
}

func (s *Server) CreateUnit(c *gin.Context) {
	p, _ := principalFrom(c)

	var req struct {
		Name         string `json:"name" binding:"required"`
		Abbreviation string `json:"abbreviation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	unit, err := s.catalogSvc.CreateUnit(c.Request.Context(), p, strings.TrimSpace(req.Name), strings.TrimSpace(req.Abbreviation))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}
