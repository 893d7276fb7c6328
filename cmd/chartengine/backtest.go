package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trading-chartsv1/internal/chart"
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/replay"
	"trading-chartsv1/internal/series"
	sqlitestore "trading-chartsv1/internal/store/sqlite"
)

var backtestFlags struct {
	speed      float64
	from       string
	db         string
	series     string
	indicators string
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay stored bars through a fresh engine and print indicator values",
	RunE:  backtest,
}

func init() {
	f := backtestCmd.Flags()
	f.Float64Var(&backtestFlags.speed, "speed", 0, "playback speed multiplier (0=max, 1=realtime, 100=100x)")
	f.StringVar(&backtestFlags.from, "from", "", "replay bars from this date or RFC 3339 time (empty=all)")
	f.StringVar(&backtestFlags.db, "db", "", "SQLite database (default from config)")
	f.StringVar(&backtestFlags.series, "series", "", "comma-separated series keys (empty=all)")
	f.StringVar(&backtestFlags.indicators, "indicators", "", "comma-separated indicator specs (default from config)")
}

func backtest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	tl, err := cfg.Timeline()
	if err != nil {
		return err
	}
	specs, err := cfg.IndicatorSpecs()
	if err != nil {
		return err
	}
	if backtestFlags.indicators != "" {
		if specs, err = indicator.ParseSpecs(splitList(backtestFlags.indicators)); err != nil {
			return err
		}
	}
	from, err := parseFrom(backtestFlags.from, tl.Session().Location)
	if err != nil {
		return err
	}
	dbPath := cfg.SQLite.Path
	if backtestFlags.db != "" {
		dbPath = backtestFlags.db
	}

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	engine := chart.NewEngine(tl, chart.Options{Specs: specs, Mode: series.ModeReplace, Log: log})
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	barCh := make(chan model.Bar, 10000)
	errCh := make(chan error, 1)
	go func() {
		_, err := replay.New(reader, log).Run(ctx, replay.Options{
			From:  from,
			Speed: backtestFlags.speed,
			Keys:  splitList(backtestFlags.series),
		}, barCh)
		close(barCh)
		errCh <- err
	}()

	processed, rejected, ready := 0, 0, 0
	out := cmd.OutOrStdout()
	for bar := range barCh {
		u, err := engine.Ingest(ctx, bar)
		if err != nil {
			rejected++
			continue
		}
		processed++
		for _, p := range u.Points {
			if !p.Ready {
				continue
			}
			ready++
			if processed <= 10 || processed%100 == 0 {
				fmt.Fprintf(out, "  [%s] %s #%d %s.%s = %.4f\n",
					u.TS.In(tl.Session().Location).Format("2006-01-02 15:04"), u.Key, u.Index, p.Dataset, p.Series, p.Value)
			}
		}
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "bars processed:  %d\n", processed)
	fmt.Fprintf(out, "bars rejected:   %d\n", rejected)
	fmt.Fprintf(out, "ready values:    %d\n", ready)
	fmt.Fprintf(out, "series:          %d\n", engine.Len())
	log.Info("backtest complete", logger.IntField("processed", processed), logger.IntField("rejected", rejected))
	return nil
}

func parseFrom(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--from: want YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
