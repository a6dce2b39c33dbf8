package middleware

import (
	"context"
	"errors"
	"net/http"

	"examprep-marketplace/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error once the handler chain
// has finished.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := ToBaseError(last.Err)
		if be.Code.HTTPStatus() >= http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("request_id", RequestID(c)),
				zap.String("path", c.FullPath()),
				zap.String("code", string(be.Code)),
				zap.Error(last.Err),
			)
		}

		c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
	}
}

// ToBaseError classifies any error. Errors that are not BaseErrors are
// reported as internal without exposing their text.
func ToBaseError(err error) errutil.BaseError {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errutil.BaseError{Code: errutil.StatusTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return errutil.BaseError{Code: errutil.StatusClientClosedRequest, Message: "request canceled"}
	}

	var coder interface{ Status() errutil.CoreStatus }
	if errors.As(err, &coder) {
		return errutil.BaseError{Code: coder.Status(), Message: http.StatusText(coder.Status().HTTPStatus())}
	}

	return errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
}
