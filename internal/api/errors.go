package api

import (
	"errors"
	"net/http"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a domain error; batch errors carry every offending product
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	if kind == service.KindInternal {
		util.Component("http").Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  kind.String(),
		})
		return
	}

	body := gin.H{
		"error": err.Error(),
		"code":  kind.String(),
	}

	var unavailable *service.UnavailableProductsError
	if errors.As(err, &unavailable) {
		body["products"] = unavailable.Products
	}
	var shortage *service.StockShortageError
	if errors.As(err, &shortage) {
		body["shortages"] = shortage.Shortages
	}

	c.JSON(statusFor(kind), body)
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message, "code": service.KindValidation.String()}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
