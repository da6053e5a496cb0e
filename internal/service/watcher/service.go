package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jorgeroden/plc-alarm-watcher/internal/config"
	alarm "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
	"github.com/jorgeroden/plc-alarm-watcher/internal/logger"
	"github.com/jorgeroden/plc-alarm-watcher/internal/metrics"
	"github.com/jorgeroden/plc-alarm-watcher/internal/notifier"
	"github.com/jorgeroden/plc-alarm-watcher/internal/repository/alarmlog"
	"github.com/jorgeroden/plc-alarm-watcher/internal/repository/state"
	"github.com/jorgeroden/plc-alarm-watcher/internal/source"
)

// Source provides alarm snapshots from the PLC.
type Source interface {
	Fetch(ctx context.Context) ([]alarm.Record, error)
}

// SignalsSource provides sensor snapshots from the PLC.
type SignalsSource interface {
	FetchSignals(ctx context.Context) ([]source.Signal, error)
}

// Notifier delivers alarm messages to the outbound channel.
type Notifier interface {
	Send(ctx context.Context, record alarm.Record) error
	SendText(ctx context.Context, text string) error
}

// Journal records detected alarms.
type Journal interface {
	Append(entry alarmlog.Entry) error
}

// SignalsJournal records sensor snapshots.
type SignalsJournal interface {
	Append(at time.Time, sourceURL string, signals []source.Signal) error
}

// Options controls the watcher process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
}

// maxBackoffFactor caps the fetch-failure backoff at this multiple of the
// poll interval.
const maxBackoffFactor = 8

// service owns the poll loop state: the in-memory seen set, the consecutive
// fetch failure counter and every collaborator.
type service struct {
	cfg            *config.Config
	source         Source
	signals        SignalsSource
	signalsURL     string
	store          state.Repository
	journal        Journal
	signalsJournal SignalsJournal
	notifier       Notifier

	// seen mirrors the persisted seen set between cycles.
	seen alarm.SeenSet
	// seeded is false only before the very first successful fetch of a
	// deployment that has no stored state yet.
	seeded bool
	// fetchFailures counts consecutive failed fetches for backoff.
	fetchFailures int
	// now is overridable for tests.
	now func() time.Time
}

// Run loads configuration, wires the collaborators and polls until the
// context is canceled. A single bad cycle never ends the process.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-watcher")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	src := source.New(cfg.BaseURL, cfg.Username, cfg.Password,
		source.WithTimeout(cfg.RequestTimeout),
		source.WithSignalsPath(cfg.SignalsPath))

	svc := &service{
		cfg:     cfg,
		source:  src,
		store:   state.NewFileRepository(cfg.StateFile),
		journal: alarmlog.NewCSVJournal(cfg.AlarmLog),
		notifier: notifier.NewTelegram(cfg.BotToken, cfg.ChatID, cfg.SubjectPrefix,
			notifier.WithTimeout(cfg.RequestTimeout),
			notifier.WithAlarmsURL(src.AlarmsURL())),
		now: time.Now,
	}

	if cfg.SignalsPath != "" {
		svc.signals = src
		svc.signalsJournal = alarmlog.NewSignalsJournal(cfg.SignalsLog)
		svc.signalsURL = src.SignalsURL()
	}

	if cfg.MetricsAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddress); err != nil {
				logger.ErrorKV(ctx, "Metrics listener failed", "error", err)
			}
		}()
	}

	svc.loadState(ctx)

	return svc.loop(ctx)
}

// loadState restores the seen set. A missing file marks the deployment as a
// first run; anything unreadable degrades to an empty set because one
// notification storm beats a crash loop.
func (s *service) loadState(ctx context.Context) {
	seen, err := s.store.Load(ctx)

	switch {
	case err == nil:
		s.seen = seen
		s.seeded = true
	case errors.Is(err, state.ErrNotFound):
		s.seen = alarm.NewSeenSet()
		s.seeded = false
	default:
		logger.WarnKV(ctx, "Stored state unusable, starting with empty seen set", "error", err)

		s.seen = alarm.NewSeenSet()
		s.seeded = true
	}
}

// loop runs cycles until the context is canceled, sleeping the poll interval
// (or the backoff delay after fetch failures) in between.
func (s *service) loop(ctx context.Context) error {
	logger.InfoKV(ctx, "Polling PLC alarms",
		"interval", s.cfg.PollInterval.String(),
		"prune_grace", s.cfg.PruneGrace.String(),
		"state_file", s.cfg.StateFile,
		"alarm_log", s.cfg.AlarmLog)

	for {
		s.cycle(ctx)

		delay := s.delay()
		if delay > s.cfg.PollInterval {
			logger.WarnKV(ctx, "Backing off after consecutive fetch failures",
				"failures", s.fetchFailures, "delay", delay.String())
		}

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-timer.C:
		}
	}
}

// cycle runs one fetch-reconcile-notify-persist pass. Every failure is
// contained here.
func (s *service) cycle(ctx context.Context) {
	metrics.Cycles.Inc()

	records, err := s.source.Fetch(ctx)
	if err != nil {
		// A failed fetch is "no observation", never an empty alarm list.
		// Touching the seen set here would clear every active alarm and
		// re-fire them all on the next successful fetch.
		s.fetchFailures++
		metrics.FetchFailures.Inc()
		logger.ErrorKV(ctx, "Fetch failed", "error", err, "consecutive_failures", s.fetchFailures)

		return
	}

	s.fetchFailures = 0

	s.snapshotSignals(ctx)

	now := s.now()

	if !s.seeded {
		s.seeded = true

		if !s.cfg.NotifyOnFirstRun {
			s.seed(ctx, records, now)

			return
		}
	}

	fresh, updated := alarm.Reconcile(records, s.seen, now, s.cfg.PruneGrace)
	pruned := len(s.seen) - len(updated)

	if pruned > 0 {
		logger.InfoKV(ctx, "Cleared alarms pruned from seen set", "count", pruned)
	}

	committed := s.dispatch(ctx, fresh, updated, now)

	s.seen = updated

	// Persist only on cycles that changed the set to bound write amplification.
	if committed > 0 || pruned > 0 {
		s.persist(ctx)
	}
}

// seed populates the seen set from the first snapshot of a fresh deployment
// without notifying, avoiding a notification storm on initial rollout.
func (s *service) seed(ctx context.Context, records []alarm.Record, now time.Time) {
	s.seen = alarm.NewSeenSet()
	for _, record := range records {
		s.seen.Mark(record.Key, now)
	}

	logger.InfoKV(ctx, "Seeded seen set on first run", "alarms", len(s.seen))

	s.persist(ctx)
}

// dispatch journals, notifies and commits each new alarm in snapshot order.
// A key is committed to the updated set only after its notification succeeded
// (or the per-cycle cap was reached), so failed sends are retried next cycle.
// It returns the number of committed keys.
func (s *service) dispatch(ctx context.Context, fresh []alarm.Record, updated alarm.SeenSet, now time.Time) int {
	if len(fresh) == 0 {
		logger.Debug(ctx, "No new alarms")

		return 0
	}

	metrics.AlarmsDetected.Add(float64(len(fresh)))
	logger.InfoKV(ctx, "New alarms detected", "count", len(fresh))

	var committed, sent, skipped int

	for _, record := range fresh {
		err := s.journal.Append(alarmlog.Entry{
			DetectedAt:  now,
			Key:         record.Key,
			PLCTime:     record.Timestamp,
			Description: record.Description,
			RawFields:   record.RawFields,
		})
		if err != nil {
			// The journal is an export; its failure must not block the alert.
			logger.ErrorKV(ctx, "Journal append failed", "key", record.Key, "error", err)
		}

		if sent >= s.cfg.MaxNotificationsPerCycle {
			// Beyond the cap alarms are committed without a message; the
			// journal, not the channel, is the complete record.
			skipped++

			updated.Mark(record.Key, now)

			committed++

			continue
		}

		if err = s.notifier.Send(ctx, record); err != nil {
			metrics.NotifyFailures.Inc()
			logger.ErrorKV(ctx, "Notification failed", "key", record.Key, "error", err)

			continue
		}

		sent++
		metrics.NotificationsSent.Inc()

		updated.Mark(record.Key, now)

		committed++
	}

	if skipped > 0 {
		summary := fmt.Sprintf(
			"⚠️ %s Notification limit reached\nSent %d of %d new alarm notifications this cycle.\n%d alarm(s) were journaled without a message.",
			s.cfg.SubjectPrefix, sent, len(fresh), skipped)

		if err := s.notifier.SendText(ctx, summary); err != nil {
			logger.ErrorKV(ctx, "Summary notification failed", "error", err)
		}
	}

	return committed
}

// snapshotSignals appends one sensors row when enabled. Failures are logged
// and never affect alarm processing.
func (s *service) snapshotSignals(ctx context.Context) {
	if s.signals == nil || s.signalsJournal == nil {
		return
	}

	signals, err := s.signals.FetchSignals(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Signals snapshot failed", "error", err)

		return
	}

	if err = s.signalsJournal.Append(s.now(), s.signalsURL, signals); err != nil {
		logger.WarnKV(ctx, "Signals journal append failed", "error", err)
	}
}

// persist saves the in-memory seen set. The set stays applied in memory on
// failure so alarms are not re-notified within this process lifetime.
func (s *service) persist(ctx context.Context) {
	if err := s.store.Save(ctx, s.seen); err != nil {
		metrics.StateSaveFailures.Inc()
		logger.ErrorKV(ctx, "State save failed", "error", err, "state_file", s.cfg.StateFile)
	}
}

// delay returns the sleep before the next cycle: the poll interval, doubled
// per consecutive fetch failure and capped at maxBackoffFactor times.
func (s *service) delay() time.Duration {
	if s.fetchFailures <= 1 {
		return s.cfg.PollInterval
	}

	factor := 1 << (s.fetchFailures - 1)
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}

	return time.Duration(factor) * s.cfg.PollInterval
}
