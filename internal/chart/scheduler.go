package chart

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/timeline"
)

// Scheduler runs periodic jobs. Specs use the six-field cron format with
// seconds.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// NewScheduler creates a scheduler evaluating specs in the session location.
func NewScheduler(sess timeline.Session, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	loc := sess.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:  log.Component("scheduler"),
	}
}

// Every registers fn under spec.
func (s *Scheduler) Every(name, spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	s.log.Info("job registered", logger.StringField("job", name), logger.StringField("spec", spec))
	return nil
}

// AtSessionClose registers fn to run at the close of every trading weekday.
// Full-day sessions have no close and are rejected.
func (s *Scheduler) AtSessionClose(name string, sess timeline.Session, fn func()) error {
	spec, err := SessionCloseSpec(sess)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return s.Every(name, spec, fn)
}

// SessionCloseSpec builds the cron spec firing at the session close on its
// trading weekdays. Holidays are not excluded.
func SessionCloseSpec(sess timeline.Session) (string, error) {
	if sess.FullDay() || sess.Close >= 24*time.Hour {
		return "", fmt.Errorf("%w: session has no close before midnight", timeline.ErrInvalidSession)
	}
	var days []string
	for wd, on := range sess.Weekdays {
		if on {
			days = append(days, strconv.Itoa(wd))
		}
	}
	h := int(sess.Close.Hours())
	m := int(sess.Close.Minutes()) % 60
	sec := int(sess.Close.Seconds()) % 60
	return fmt.Sprintf("%d %d %d * * %s", sec, m, h, strings.Join(days, ",")), nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
