package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// SecureHeaders sets the usual security headers. With sslRedirect, plain HTTP
// requests are redirected to host:port over TLS.
func SecureHeaders(host string, port int, sslRedirect, dev bool) gin.HandlerFunc {
	opts := secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      dev,
	}
	if sslRedirect {
		opts.SSLRedirect = true
		opts.SSLHost = host + ":" + strconv.Itoa(port)
		opts.STSSeconds = 31536000
	}
	secureMiddleware := secure.New(opts)

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// redirected or rejected, the response is already written
			zap.L().Debug("secure middleware stopped request", zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
