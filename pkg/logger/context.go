package logger

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FromContext returns the request-scoped logger installed by the request ID
// middleware. When none is present, the global logger is tagged with the
// request ID from the incoming headers, if any.
func FromContext(c echo.Context) *zap.Logger {
	if log, ok := c.Get("logger").(*zap.Logger); ok {
		return log
	}

	requestID, _ := c.Get("request_id").(string)
	if requestID == "" {
		requestID = c.Request().Header.Get("X-Request-ID")
	}
	if requestID == "" {
		return GetLogger()
	}
	return GetLogger().With(zap.String("request_id", requestID))
}
