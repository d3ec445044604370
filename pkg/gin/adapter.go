// Package gin mounts the facilitator's endpoints on a gin router.
package gin

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	facilitator "github.com/x402-teller/facilitator-go"
)

// Mount registers every facilitator endpoint on the engine.
func Mount(router *gin.Engine, f *facilitator.Facilitator) {
	handle := func(c *gin.Context) {
		requestID := uuid.NewString()

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		}

		query := make(map[string]string)
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		resp := f.HandleRequest(c.Request.Context(), &facilitator.HTTPRequest{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  query,
			Body:   body,
		})

		logrus.WithFields(logrus.Fields{
			"requestID": requestID,
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    resp.Status,
		}).Debug("facilitator request")

		c.Header("X-Request-Id", requestID)
		c.JSON(resp.Status, resp.Body)
	}

	router.GET("/supported", handle)
	router.GET("/public-keys", handle)
	router.POST("/verify", handle)
	router.POST("/settle", handle)
	router.GET("/dashboard", handle)
	router.GET("/dashboard/endpoints", handle)
	router.GET("/dashboard/transactions", handle)
	router.GET("/balance", handle)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, facilitator.ErrorBody{Error: "Not found"})
	})
}
