package utils

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/docintake/apperr"
)

// RequestIDKey stores the per-request id inside the gin context.
const RequestIDKey = "request_id"

// ErrorResponse is the uniform body for failed API calls.
type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// Respond writes body as JSON with the given status code.
func Respond(ctx *gin.Context, status int, body any) {
	ctx.JSON(status, body)
}

// Error writes a structured error response.
func Error(ctx *gin.Context, status int, code, message string) {
	ctx.JSON(status, ErrorResponse{
		OK:        false,
		Error:     message,
		Code:      code,
		RequestID: ctx.GetString(RequestIDKey),
	})
}

// Fail maps an application error onto its status code and error body.
// Server-side failures are also logged with the wrapped cause.
func Fail(ctx *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		Sugar.Errorw("request failed",
			"path", ctx.Request.URL.Path,
			"request_id", ctx.GetString(RequestIDKey),
			"error", err,
		)
	}
	Error(ctx, status, string(apperr.KindOf(err)), apperr.PublicMessage(err))
}
