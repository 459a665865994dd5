// Package monitor drives the poll loop: fetch the feed, skip what was
// already delivered, and push everything new through format → media →
// webhook → dedup store.
package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darrenwatt/truthy/internal/domain"
	"github.com/darrenwatt/truthy/internal/format"
	"github.com/darrenwatt/truthy/internal/store"
)

// Fetcher retrieves one page of recent statuses; it degrades to an empty
// page instead of failing.
type Fetcher interface {
	Fetch(ctx context.Context) []domain.Status
}

// Formatter builds the outbound message text for one status.
type Formatter interface {
	Message(st domain.Status) (msg string, clamped bool, err error)
}

// Downloader fetches a single attachment for the multipart payload.
type Downloader interface {
	Download(ctx context.Context, att domain.MediaAttachment) ([]byte, string, error)
}

// Deliverer sends a notification to the outbound channel.
type Deliverer interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Hooks carries the metric callbacks injected by main.
// Any nil hook is replaced by a no-op so the loop never nil-checks.
type Hooks struct {
	OnFetched   func(count int)
	OnSkipped   func()
	OnDelivered func(latency time.Duration)
	OnFailed    func(stage string)
	OnCycle     func(elapsed time.Duration)
}

func (h *Hooks) fillDefaults() {
	if h.OnFetched == nil {
		h.OnFetched = func(int) {}
	}
	if h.OnSkipped == nil {
		h.OnSkipped = func() {}
	}
	if h.OnDelivered == nil {
		h.OnDelivered = func(time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(string) {}
	}
	if h.OnCycle == nil {
		h.OnCycle = func(time.Duration) {}
	}
}

// Monitor is the orchestrator. It is strictly single-threaded: at most one
// HTTP call is in flight at any moment, which bounds load on both the feed
// source and the webhook.
type Monitor struct {
	fetcher   Fetcher
	repo      store.PostRepository
	formatter Formatter
	relay     Downloader
	channel   Deliverer
	interval  time.Duration
	hooks     Hooks
	logger    *zap.Logger
}

func New(
	fetcher Fetcher,
	repo store.PostRepository,
	formatter Formatter,
	relay Downloader,
	channel Deliverer,
	interval time.Duration,
	hooks Hooks,
	logger *zap.Logger,
) *Monitor {
	hooks.fillDefaults()
	return &Monitor{
		fetcher:   fetcher,
		repo:      repo,
		formatter: formatter,
		relay:     relay,
		channel:   channel,
		interval:  interval,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run executes an immediate first cycle, then one cycle per interval until
// ctx is cancelled. It only ever returns ctx.Err(): per-item and per-cycle
// failures are contained inside Cycle.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitor started", zap.Duration("interval", m.interval))

	m.Cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle performs one fetch-filter-deliver pass. Items are processed most
// recent first so an interrupted cycle prioritises fresh content next time.
func (m *Monitor) Cycle(ctx context.Context) {
	start := time.Now()
	log := m.logger.With(zap.String("cycle_id", uuid.New().String()))

	statuses := m.fetcher.Fetch(ctx)
	m.hooks.OnFetched(len(statuses))

	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].CreatedAt > statuses[j].CreatedAt
	})

	for _, st := range statuses {
		if ctx.Err() != nil {
			return
		}
		m.processOne(ctx, log, st)
	}

	m.hooks.OnCycle(time.Since(start))
	log.Info("cycle complete",
		zap.Int("fetched", len(statuses)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// processOne pushes a single status through the pipeline. Every failure is
// logged and contained here; one bad item never aborts the rest of the page.
// The dedup record is written only after the channel confirms delivery.
func (m *Monitor) processOne(ctx context.Context, log *zap.Logger, st domain.Status) {
	if st.ID == "" {
		log.Warn("dropping status without id", zap.String("created_at", st.CreatedAt))
		return
	}
	log = log.With(zap.String("post_id", st.ID))

	seen, err := m.repo.Has(ctx, st.ID)
	if err != nil {
		log.Error("dedup lookup failed", zap.Error(err))
		m.hooks.OnFailed("dedup")
		return
	}
	if seen {
		log.Debug("already processed, skipping")
		m.hooks.OnSkipped()
		return
	}

	log.Info("processing new post")

	msg, clamped, err := m.formatter.Message(st)
	if err != nil {
		log.Error("formatting failed", zap.Error(err))
		m.hooks.OnFailed("format")
		return
	}
	if clamped {
		log.Warn("message exceeded hard limit, emergency truncation applied",
			zap.Int("length", len([]rune(msg))))
	}

	n := domain.Notification{Text: msg}
	for _, att := range format.DeliverableMedia(st) {
		data, filename, err := m.relay.Download(ctx, att)
		if err != nil {
			log.Warn("skipping attachment",
				zap.String("url", att.SourceURL()), zap.Error(err))
			continue
		}
		n.Attachments = append(n.Attachments, domain.Attachment{
			Filename: filename,
			Data:     data,
		})
	}

	sendStart := time.Now()
	if err := m.channel.Send(ctx, n); err != nil {
		log.Error("delivery failed", zap.Error(err))
		m.hooks.OnFailed("deliver")
		return
	}
	m.hooks.OnDelivered(time.Since(sendStart))

	if err := m.repo.MarkProcessed(ctx, st, time.Now().UTC()); err != nil {
		// Delivered but unrecorded: the next cycle may send a duplicate,
		// which is the documented at-least-once trade-off.
		log.Error("failed to mark post processed", zap.Error(err))
		m.hooks.OnFailed("mark")
		return
	}

	log.Info("post delivered and recorded", zap.Int("attachments", len(n.Attachments)))
}
