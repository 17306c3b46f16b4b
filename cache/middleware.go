package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"weblog/common"
)

const jsonContentType = "application/json; charset=utf-8"

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// uncached paths are never served from or written to the cache. Post pages
// count views on every request.
var uncached = []string{"/admin", "/login", "/logout", "/posts/"}

func cacheable(path string) bool {
	for _, prefix := range uncached {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Middleware caches successful JSON responses to public GET requests, keyed
// by the full request URI.
func (c *Cache) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet || !cacheable(ctx.Request.URL.Path) {
			ctx.Next()
			return
		}

		uri := ctx.Request.URL.RequestURI()
		if cached, found := c.Read(uri); found {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, jsonContentType, cached)
			ctx.Abort()
			return
		}

		ctx.Header("X-Cache", "MISS")
		gen := c.Generation()
		writer := &responseWriter{
			ResponseWriter: ctx.Writer,
			body:           bytes.NewBuffer(nil),
		}
		ctx.Writer = writer

		ctx.Next()

		if writer.Status() == http.StatusOK && writer.Header().Get("Content-Type") == jsonContentType {
			if _, err := c.WriteIfCurrent(uri, writer.body.Bytes(), gen); err != nil {
				common.Log.WithError(err).WithField("uri", uri).Warn("error writing cache")
			}
		}
	}
}
