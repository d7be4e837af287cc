// Package sweeper reclaims capacity held by abandoned holds and unpaid
// bookings. It is the only component that acts on expiry without a request.
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	bookingsservice "slotkeeper/internal/bookings/service"
	holdsservice "slotkeeper/internal/holds/service"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/logger"
)

// maxBatchesPerPhase caps how many batches one pass drains per phase, so a
// backlog is worked off over several ticks instead of one long pass.
const maxBatchesPerPhase = 10

// Result describes a single pass.
type Result struct {
	HoldsExpired     int `json:"holdsExpired"`
	BookingsTimedOut int `json:"bookingsTimedOut"`
	Errors           int `json:"errors"`
}

// Stats are the cumulative counters since startup.
type Stats struct {
	HoldsExpired     int64     `json:"holds_expired"`
	BookingsTimedOut int64     `json:"bookings_timed_out"`
	Runs             int64     `json:"runs"`
	Errors           int64     `json:"errors"`
	LastRun          time.Time `json:"last_run,omitempty"`
}

type Sweeper struct {
	store    storage.Store
	holds    holdsservice.HoldService
	bookings bookingsservice.BookingService
	clock    clock.Clock
	interval time.Duration
	batch    int
	log      *logger.Logger

	holdsExpired     atomic.Int64
	bookingsTimedOut atomic.Int64
	runs             atomic.Int64
	errors           atomic.Int64
	lastRun          atomic.Int64
}

func New(
	store storage.Store,
	holds holdsservice.HoldService,
	bookings bookingsservice.BookingService,
	clk clock.Clock,
	cfg *config.Config,
) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = config.DefaultSweepBatchSize
	}
	return &Sweeper{
		store:    store,
		holds:    holds,
		bookings: bookings,
		clock:    clk,
		interval: interval,
		batch:    batch,
		log:      cfg.Log.Component("sweeper"),
	}
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("Expiry sweeper started", "interval", s.interval, "batch_size", s.batch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs one pass: expired holds first, then overdue pending
// bookings. Per-item failures are counted and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) Result {
	now := s.clock.Now()
	var res Result

	s.expireHolds(ctx, now, &res)
	s.timeoutBookings(ctx, now, &res)

	s.runs.Add(1)
	s.lastRun.Store(now.UnixNano())
	s.holdsExpired.Add(int64(res.HoldsExpired))
	s.bookingsTimedOut.Add(int64(res.BookingsTimedOut))
	s.errors.Add(int64(res.Errors))

	if res.HoldsExpired > 0 || res.BookingsTimedOut > 0 || res.Errors > 0 {
		s.log.Info("Sweep completed",
			"holds_expired", res.HoldsExpired,
			"bookings_timed_out", res.BookingsTimedOut,
			"errors", res.Errors,
		)
	}
	return res
}

func (s *Sweeper) expireHolds(ctx context.Context, now time.Time, res *Result) {
	for i := 0; i < maxBatchesPerPhase; i++ {
		if ctx.Err() != nil {
			return
		}
		holds, err := s.store.Holds().ListExpiredHolds(ctx, now, s.batch)
		if err != nil {
			s.log.Error("Failed to list expired holds", "error", err)
			res.Errors++
			return
		}

		progress := 0
		for _, h := range holds {
			won, err := s.holds.Expire(ctx, h.ID)
			if err != nil {
				s.log.Warn("Failed to expire hold", "hold_id", h.ID, "slot_id", h.SlotID, "error", err)
				res.Errors++
				continue
			}
			if won {
				res.HoldsExpired++
				progress++
			}
		}

		if len(holds) < s.batch || progress == 0 {
			return
		}
	}
}

func (s *Sweeper) timeoutBookings(ctx context.Context, now time.Time, res *Result) {
	for i := 0; i < maxBatchesPerPhase; i++ {
		if ctx.Err() != nil {
			return
		}
		bookings, err := s.store.Bookings().ListOverduePending(ctx, now, s.batch)
		if err != nil {
			s.log.Error("Failed to list overdue bookings", "error", err)
			res.Errors++
			return
		}

		progress := 0
		for _, b := range bookings {
			changed, err := s.bookings.TimeoutPayment(ctx, b.ID)
			if err != nil {
				s.log.Warn("Failed to time out booking", "booking_id", b.ID, "error", err)
				res.Errors++
				continue
			}
			if changed {
				res.BookingsTimedOut++
				progress++
			}
		}

		if len(bookings) < s.batch || progress == 0 {
			return
		}
	}
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		HoldsExpired:     s.holdsExpired.Load(),
		BookingsTimedOut: s.bookingsTimedOut.Load(),
		Runs:             s.runs.Load(),
		Errors:           s.errors.Load(),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		st.LastRun = time.Unix(0, ns).UTC()
	}
	return st
}
