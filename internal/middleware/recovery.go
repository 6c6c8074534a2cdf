package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sarthi/gateway/internal/offline"
)

// repairPage is shown to a browser whose document load panicked. Its only
// action is a full reload.
const repairPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Sarthi</title></head>
<body>
<h1>Something went wrong</h1>
<p>Sarthi hit an unexpected error and is in repair mode.</p>
<button onclick="window.location.reload()">Reload</button>
</body>
</html>
`

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("request_id", c.Writer.Header().Get(requestIDHeader)).
					Msg("panic recovered")
				if offline.IsNavigation(c.Request) {
					c.Header("Cache-Control", "no-store")
					c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(repairPage))
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal_server_error",
				})
			}
		}()
		c.Next()
	}
}
