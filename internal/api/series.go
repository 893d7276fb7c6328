package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"trading-chartsv1/internal/dataset"
	"trading-chartsv1/internal/model"
)

func (s *Server) SetupSeries(base *echo.Group) {
	g := base.Group("/series")
	g.GET("", s.listSeries)
	g.GET("/:key/bars", s.getBars)
	g.POST("/:key/bars", s.postBar)
	g.GET("/:key/latest", s.getLatest)
	g.GET("/:key/datasets", s.listDatasets)
	g.GET("/:key/datasets/:spec", s.getDataset)
}

func (s *Server) listSeries(c echo.Context) error {
	keys := s.engine.Keys()
	out := make([]SeriesInfo, 0, len(keys))
	for _, key := range keys {
		info := SeriesInfo{Key: key}
		if src, ok := s.engine.Series(key); ok {
			first, ok1 := src.At(0)
			last, ok2 := src.Last()
			if ok1 && ok2 {
				info.Size = src.Size()
				info.First = first.Index
				info.Last = last.Index
				info.LastTS = last.TS.Format(time.RFC3339)
			}
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getBars(c echo.Context) error {
	req := &RangeRequest{To: -1}
	if ok, err := s.bind(c, req); !ok {
		return err
	}
	bars, err := s.engine.Bars(req.Key, req.From, req.To)
	if err != nil {
		return s.fail(c, err)
	}
	if bars == nil {
		bars = []model.Bar{}
	}
	return c.JSON(http.StatusOK, bars)
}

func (s *Server) postBar(c echo.Context) error {
	req := new(IngestRequest)
	if ok, err := s.bind(c, req); !ok {
		return err
	}
	u, err := s.ingester.Ingest(c.Request().Context(), req.bar())
	if err != nil {
		return s.fail(c, err)
	}
	code := http.StatusCreated
	if u.Replaced {
		code = http.StatusOK
	}
	return c.JSON(code, u)
}

func (s *Server) getLatest(c echo.Context) error {
	u, err := s.engine.Latest(c.Param("key"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) listDatasets(c echo.Context) error {
	key := c.Param("key")
	ohlc, err := s.engine.OHLC(key)
	if err != nil {
		return s.fail(c, err)
	}
	ds, err := s.engine.Datasets(key)
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]DatasetInfo, 0, len(ds)+1)
	out = append(out, info(ohlc, ""))
	for _, d := range ds {
		out = append(out, info(d, d.Spec().String()))
	}
	return c.JSON(http.StatusOK, out)
}

// getDataset returns the rows of a configured or ad-hoc dataset. The spec
// "OHLC" selects the raw bar columns.
func (s *Server) getDataset(c echo.Context) error {
	req := &DatasetRequest{To: -1}
	if ok, err := s.bind(c, req); !ok {
		return err
	}

	var (
		d    dataset.Dataset
		spec string
	)
	if req.Spec == "OHLC" {
		ohlc, err := s.engine.OHLC(req.Key)
		if err != nil {
			return s.fail(c, err)
		}
		d = ohlc
	} else {
		ind, err := s.engine.Dataset(req.Key, req.Spec)
		if err != nil {
			return s.fail(c, err)
		}
		d, spec = ind, ind.Spec().String()
	}

	rows := d.Rows(req.From, req.To)
	if rows == nil {
		rows = []dataset.Row{}
	}
	return c.JSON(http.StatusOK, DatasetResponse{
		Name:   d.Name(),
		Spec:   spec,
		Series: seriesKeys(d),
		Rows:   rows,
	})
}

func info(d dataset.Dataset, spec string) DatasetInfo {
	return DatasetInfo{Name: d.Name(), Spec: spec, Series: seriesKeys(d), Items: d.ItemCount(0)}
}

func seriesKeys(d dataset.Dataset) []string {
	keys := make([]string, d.SeriesCount())
	for i := range keys {
		keys[i] = d.SeriesKey(i)
	}
	return keys
}
