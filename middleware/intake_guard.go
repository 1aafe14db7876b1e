package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/utils"
)

// IntakeThrottle caps intake requests per client IP, counted separately for
// every link, so one sender cannot spend another customer's quota.
func IntakeThrottle(t utils.IntakeThrottle) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if slug := ctx.Param("slug"); slug != "" {
			key = "slug:" + slug + ":" + key
		}
		if !t.Allow(ctx.Request.Context(), key) {
			utils.Fail(ctx, apperr.RateLimited("too many uploads, please try again later"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// MaxBodySize rejects request bodies larger than limit bytes.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.ContentLength > limit {
			utils.Fail(ctx, apperr.TooLarge("request body too large"))
			ctx.Abort()
			return
		}
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		ctx.Next()
	}
}

// IsBodyTooLarge reports whether err came from a MaxBodySize limit.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
