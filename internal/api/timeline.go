package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) SetupTimeline(base *echo.Group) {
	g := base.Group("/timeline")
	g.GET("/index", s.timelineIndex)
	g.GET("/time", s.timelineTime)
}

func (s *Server) timelineIndex(c echo.Context) error {
	req := new(TimelineIndexRequest)
	if ok, err := s.bind(c, req); !ok {
		return err
	}
	ts, err := parseTS(req.TS)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Status: http.StatusBadRequest, Message: "ts must be RFC 3339 or Unix milliseconds"})
	}

	tl := s.engine.Timeline()
	idx, err := tl.ToTimelineValue(ts)
	if err != nil {
		return s.fail(c, err)
	}
	return s.indexResponse(c, idx)
}

func (s *Server) timelineTime(c echo.Context) error {
	req := &TimelineTimeRequest{Index: -1}
	if ok, err := s.bind(c, req); !ok {
		return err
	}
	return s.indexResponse(c, req.Index)
}

func (s *Server) indexResponse(c echo.Context, idx int) error {
	start, err := s.engine.Timeline().ToTime(idx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, TimelineIndexResponse{
		Index:       idx,
		PeriodStart: start.Format(time.RFC3339),
		Millis:      start.UnixMilli(),
	})
}

func parseTS(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, raw)
}
