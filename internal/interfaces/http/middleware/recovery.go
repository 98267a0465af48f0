package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"lab-data-api/internal/interfaces/http/dto"
	apperrors "lab-data-api/pkg/errors"
	"lab-data-api/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", err),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				if !c.Writer.Written() {
					dto.Error(c, apperrors.ErrInternalError)
					return
				}
				c.Abort()
			}
		}()

		c.Next()
	}
}
