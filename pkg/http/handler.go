package http

import "github.com/labstack/echo/v4"

// Handler is implemented by API modules that mount their own routes on the
// shared echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
