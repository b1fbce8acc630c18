package middleware

import (
	"errors"
	"net/http"

	"loyalty-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a JSON body keyed off its status.
// Errors without a status come back as a plain 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(err.Err, &be) {
			be = errutil.BaseError{
				Code:    errutil.StatusInternal,
				Message: http.StatusText(http.StatusInternalServerError),
			}
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
