package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine errors onto HTTP status codes. Quota exhaustion is
// reported as 403, like a permission the caller has run out of.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(c *gin.Context, err error) {
	code := statusFor(err)

	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal server error"
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", `Bearer realm="blobkeeper"`)
		msg = common.ErrUnauthenticated.Error()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}
