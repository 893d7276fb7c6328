package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
	"trading-chartsv1/internal/timeline"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, timeline.ErrOutOfSession),
		errors.Is(err, timeline.ErrIndexOutOfRange),
		errors.Is(err, indicator.ErrInvalidParameter),
		errors.Is(err, model.ErrInvalidBar):
		return http.StatusBadRequest
	case errors.Is(err, series.ErrIndexNotFound),
		errors.Is(err, series.ErrUnknownSeries):
		return http.StatusNotFound
	case errors.Is(err, series.ErrStaleBar):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.ErrorContext(c.Request().Context(), "request failed",
			logger.StringField("path", c.Path()), logger.ErrorField(err))
		msg = "internal error"
	}
	return c.JSON(code, ErrorResponse{Status: code, Message: msg})
}
