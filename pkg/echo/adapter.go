// Package echo mounts the payment endpoints on an echo router. Unlike the
// gin adapter it exposes only the payment surface, not the dashboard.
package echo

import (
	"io"

	"github.com/labstack/echo/v4"

	facilitator "github.com/x402-teller/facilitator-go"
)

// Mount registers the payment endpoints on the router.
func Mount(e *echo.Echo, f *facilitator.Facilitator) {
	handle := func(c echo.Context) error {
		req := c.Request()

		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(req.Body, 1<<20))
		}

		query := make(map[string]string)
		for key, values := range req.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		resp := f.HandleRequest(req.Context(), &facilitator.HTTPRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  query,
			Body:   body,
		})
		return c.JSON(resp.Status, resp.Body)
	}

	e.GET("/supported", handle)
	e.GET("/public-keys", handle)
	e.POST("/verify", handle)
	e.POST("/settle", handle)
}
