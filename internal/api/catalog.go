package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) listProducts(c *gin.Context) {
	page, limit, ok := parsePaging(c)
	if !ok {
		return
	}

	query := service.ProductQuery{
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_price", &query.MinPrice}, {"max_price", &query.MaxPrice}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(c, "Invalid "+p.name, err)
			return
		}
		*p.dst = &v
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
