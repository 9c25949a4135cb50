package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// Overdue is a pending board entry older than the notifier's threshold.
type Overdue struct {
	Entry  store.BoardEntry
	Person string
	Age    time.Duration
}

// OverdueNotifier periodically reports pending entries that have been open
// longer than a threshold. It only reads; no entry is closed or changed.
//
// A threshold of 0 disables the notifier.
type OverdueNotifier struct {
	store     store.Reader
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
	notify    func([]Overdue)

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

type OverdueConfig struct {
	// Threshold is how long an entry may stay pending before it is reported.
	Threshold time.Duration
	// Interval is how often the board is scanned. Defaults to 15m.
	Interval time.Duration
	// Notify, if set, receives each non-empty scan result after it is logged.
	Notify func([]Overdue)
	Now    func() time.Time
}

// NewOverdueNotifier creates a notifier but does not start it.
func NewOverdueNotifier(r store.Reader, cfg OverdueConfig, logger *zap.Logger) *OverdueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OverdueNotifier{
		store:     r,
		threshold: cfg.Threshold,
		interval:  interval,
		now:       now,
		logger:    logger.Named("overdue"),
		notify:    cfg.Notify,
		done:      make(chan struct{}),
	}
}

// Start scans once immediately, then on every interval, until ctx is
// cancelled or Stop is called.
func (n *OverdueNotifier) Start(ctx context.Context) {
	if n.threshold <= 0 {
		n.logger.Info("overdue notifier disabled")
		close(n.done)
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	go n.loop(ctx)
	n.logger.Info("overdue notifier started",
		zap.Duration("threshold", n.threshold),
		zap.Duration("interval", n.interval))
}

// Stop signals the loop to exit and waits for it. Safe to call more than
// once, and after the parent context is gone. Start must have been called.
func (n *OverdueNotifier) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
	})
	<-n.done
}

func (n *OverdueNotifier) loop(ctx context.Context) {
	defer close(n.done)

	n.tick(ctx)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

func (n *OverdueNotifier) tick(ctx context.Context) {
	found, err := n.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			n.logger.Error("overdue scan failed", zap.Error(err))
		}
		return
	}
	for _, o := range found {
		n.logger.Warn("entry overdue",
			zap.Int64("person_id", o.Entry.PersonID),
			zap.String("person", o.Person),
			zap.Int64("record_id", o.Entry.HistoryID),
			zap.Duration("age", o.Age))
	}
	if len(found) > 0 && n.notify != nil {
		n.notify(found)
	}
}

// Scan returns the pending entries older than the threshold, oldest first.
func (n *OverdueNotifier) Scan(ctx context.Context) ([]Overdue, error) {
	board, err := n.store.ListBoard(ctx)
	if err != nil {
		return nil, err
	}
	now := n.now()
	var out []Overdue
	for _, e := range board {
		if !e.PendingExit {
			continue
		}
		age := now.Sub(e.EffectiveAt())
		if age < n.threshold {
			continue
		}
		o := Overdue{Entry: e, Age: age}
		if p, err := n.store.GetPerson(ctx, e.PersonID); err == nil {
			o.Person = p.FullName
		}
		out = append(out, o)
	}
	return out, nil
}
