package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/history"
	"github.com/loykin/vpnclient/pkg/client"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// statusCode maps argument errors to 400 and everything else, storage included, to 500.
func statusCode(err error) int {
	switch {
	case errors.Is(err, history.ErrInvalidDate),
		errors.Is(err, history.ErrInvalidSortOrder),
		errors.Is(err, event.ErrUnknownStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusCode(err), client.ErrorResponse{Error: err.Error()})
}
