package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"lab-data-api/internal/application/ratelimit"
	"lab-data-api/internal/interfaces/http/dto"
)

// 限流响应头
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

const defaultMaxBodyBytes = 64 << 10

// RateLimitConfig 限流中间件配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// MaxBodyBytes 字段策略最多读取的请求体字节数
	MaxBodyBytes int64
}

// RateLimit 限流中间件
//
// 放行时写入配额响应头后继续；超限时返回 429 并终止。
// 计数存储不可用时由限流器放行，中间件不区分。
func RateLimit(cfg RateLimitConfig, limiter *ratelimit.Limiter) gin.HandlerFunc {
	// 如果未启用限流，返回空中间件
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	return func(c *gin.Context) {
		dec := limiter.Check(c.Request.Context(), ratelimit.Descriptor{
			Method:    c.Request.Method,
			Route:     c.FullPath(),
			ClientIP:  c.ClientIP(),
			SubjectID: SubjectID(c),
			Field:     bodyFieldReader(c, cfg.MaxBodyBytes),
		})

		c.Header(HeaderRateLimitLimit, strconv.Itoa(dec.Limit))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(dec.Remaining))
		c.Header(HeaderRateLimitReset, strconv.FormatInt(dec.Reset.Unix(), 10))

		if !dec.Allowed {
			secs := int(dec.RetryAfter.Seconds())
			c.Header(HeaderRetryAfter, strconv.Itoa(secs))
			dto.RateLimited(c, secs)
			return
		}

		c.Next()
	}
}

// bodyFieldReader 按需读取 JSON 请求体中的字段，读取后恢复请求体供后续处理
func bodyFieldReader(c *gin.Context, maxBytes int64) func(string) (string, bool) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}

	var (
		loaded bool
		buf    []byte
	)
	return func(name string) (string, bool) {
		if !loaded {
			loaded = true
			orig := c.Request.Body
			b, err := io.ReadAll(io.LimitReader(orig, maxBytes))
			// 已读部分拼回未读部分，后续处理器看到完整请求体
			c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(b), orig), Closer: orig}
			if err != nil {
				return "", false
			}
			buf = b
		}
		if len(buf) == 0 || !gjson.ValidBytes(buf) {
			return "", false
		}
		res := gjson.GetBytes(buf, name)
		if !res.Exists() || res.Type != gjson.String {
			return "", false
		}
		return res.String(), true
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
