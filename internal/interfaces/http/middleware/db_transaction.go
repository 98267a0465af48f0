package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/interfaces/http/dto"
	apperrors "lab-data-api/pkg/errors"
	"lab-data-api/pkg/logger"
)

type rollbackOnlyError struct {
	status int
}

func (e rollbackOnlyError) Error() string {
	return fmt.Sprintf("rollback only: status=%d", e.status)
}

// DBTransaction 将写请求包裹在一个数据库事务中
//
// 事务连接在取出时已按请求的租户上下文推送会话设置，处理器内的所有写入共用这条连接。
// 状态码 >= 400 或 Gin 记录了错误时回滚，否则提交。读请求不开启事务。
func DBTransaction(tx repository.Transactor) gin.HandlerFunc {
	if tx == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		ctx := c.Request.Context()
		err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
			c.Request = c.Request.WithContext(txCtx)
			c.Next()

			status := c.Writer.Status()
			if status >= http.StatusBadRequest || len(c.Errors) > 0 {
				return rollbackOnlyError{status: status}
			}
			return nil
		})
		c.Request = c.Request.WithContext(ctx)

		if err == nil {
			return
		}

		// 处理器主动回滚时响应已写入
		var rbErr rollbackOnlyError
		if errors.As(err, &rbErr) {
			return
		}

		logger.Error(ctx, "db transaction failed", err)
		if !c.Writer.Written() {
			dto.Error(c, apperrors.ErrInternalError)
		}
	}
}
