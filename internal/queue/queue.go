// internal/queue/queue.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/store"
)

// Job is one queued send for one (campaign, contact) pair. Text is already
// rendered and Phone already canonical when the job is submitted. Retries
// keep the same job identity with an incremented Attempt.
type Job struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Phone      string `json:"phone"`
	Text       string `json:"text"`
	Attempt    int    `json:"attempt"`
}

// NewJob builds a first-attempt job with a fresh id.
func NewJob(campaignID, phone, text string) Job {
	return Job{
		ID:         "job_" + uuid.NewString(),
		CampaignID: campaignID,
		Phone:      phone,
		Text:       text,
	}
}

// Stats is a point-in-time projection over the queue's job set.
// Waiting + Active + Completed + Failed == Total submitted.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

func (s Stats) String() string {
	return fmt.Sprintf("waiting=%d active=%d completed=%d failed=%d total=%d",
		s.Waiting, s.Active, s.Completed, s.Failed, s.Total)
}

// Config bounds the queue's throughput and retry policy.
type Config struct {
	RatePerSecond int
	Concurrency   int
	MaxAttempts   int
	BackoffBase   time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 200
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

// DispatchQueue releases jobs to a delivery provider at a bounded rate with
// bounded concurrency, retrying transient failures with exponential backoff
// and writing terminal outcomes through to the status store.
//
// The dispatch loop is the sole consumer of the waiting list; submissions
// and retry re-entries only append. Stats are atomic counters so snapshot
// reads never touch the loop's lock.
type DispatchQueue struct {
	cfg     Config
	sender  provider.Sender
	store   store.Store
	log     zerolog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	waiting []*Job
	wake    chan struct{}
	// timers holds pending backoff timers so Stop can cancel them
	// without a watcher goroutine per retry.
	timers map[*time.Timer]struct{}

	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nWaiting   atomic.Int64
	nActive    atomic.Int64
	nCompleted atomic.Int64
	nFailed    atomic.Int64
	nTotal     atomic.Int64

	// onTerminal, when set, runs after every terminal outcome with the
	// job's campaign id. Set before Start.
	onTerminal func(campaignID string)
}

func NewDispatchQueue(cfg Config, sender provider.Sender, st store.Store, log zerolog.Logger) *DispatchQueue {
	cfg = cfg.withDefaults()
	return &DispatchQueue{
		cfg:    cfg,
		sender: sender,
		store:  st,
		log:    log.With().Str("component", "dispatch_queue").Logger(),
		// Burst of one keeps the inter-release interval at 1/rate even
		// right after idle periods.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		wake:    make(chan struct{}, 1),
		timers:  map[*time.Timer]struct{}{},
		sem:     make(chan struct{}, cfg.Concurrency),
	}
}

// SetOnTerminal registers the per-outcome notification hook.
func (q *DispatchQueue) SetOnTerminal(fn func(campaignID string)) {
	q.onTerminal = fn
}

// Start launches the dispatch loop. It errors when already running.
func (q *DispatchQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return errors.New("dispatch queue already started")
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.run(ctx)
	q.log.Info().
		Int("rate_per_second", q.cfg.RatePerSecond).
		Int("concurrency", q.cfg.Concurrency).
		Int("max_attempts", q.cfg.MaxAttempts).
		Msg("dispatch queue started")
	return nil
}

// Stop halts the loop and waits for in-flight sends to finish. Jobs still
// waiting are dropped from memory; their records remain pending in the
// store and are picked up by the next campaign scan.
func (q *DispatchQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()

	// In-flight sends are done, so no new timers can appear.
	q.mu.Lock()
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	q.mu.Unlock()

	q.log.Info().Msg("dispatch queue stopped")
}

// Submit appends first-attempt jobs in order and records them as pending.
// Submission order is the dispatch order for these jobs.
func (q *DispatchQueue) Submit(jobs []Job) {
	for i := range jobs {
		job := jobs[i]
		job.Attempt = 0

		q.putRecord(model.MessageRecord{
			CampaignID: job.CampaignID,
			Phone:      job.Phone,
			Status:     model.MessagePending,
			Timestamp:  time.Now().UTC(),
		})

		q.mu.Lock()
		q.waiting = append(q.waiting, &job)
		q.mu.Unlock()

		q.nWaiting.Add(1)
		q.nTotal.Add(1)
	}
	q.signal()
}

// Stats returns a counter snapshot. Safe to call concurrently with
// dispatch; it never blocks the loop.
func (q *DispatchQueue) Stats() Stats {
	return Stats{
		Waiting:   q.nWaiting.Load(),
		Active:    q.nActive.Load(),
		Completed: q.nCompleted.Load(),
		Failed:    q.nFailed.Load(),
		Total:     q.nTotal.Load(),
	}
}

// EstimatedDrainTime reports how long the current waiting set takes to
// release at the configured rate.
func (q *DispatchQueue) EstimatedDrainTime() time.Duration {
	waiting := q.nWaiting.Load()
	if waiting == 0 {
		return 0
	}
	return time.Duration(waiting) * (time.Second / time.Duration(q.cfg.RatePerSecond))
}

func (q *DispatchQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *DispatchQueue) pop(ctx context.Context) *Job {
	for {
		q.mu.Lock()
		if len(q.waiting) > 0 {
			job := q.waiting[0]
			q.waiting = q.waiting[1:]
			q.mu.Unlock()
			return job
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		}
	}
}

func (q *DispatchQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		job := q.pop(ctx)
		if job == nil {
			return
		}

		// Concurrency gate before the limiter so a full worker pool does
		// not burn tokens while nothing can be released.
		select {
		case q.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if err := q.limiter.Wait(ctx); err != nil {
			<-q.sem
			return
		}

		q.nWaiting.Add(-1)
		q.nActive.Add(1)
		q.wg.Add(1)
		go q.execute(ctx, job)
	}
}

func (q *DispatchQueue) execute(ctx context.Context, job *Job) {
	defer q.wg.Done()
	defer func() { <-q.sem }()

	sendCtx, cancel := context.WithTimeout(ctx, q.cfg.SendTimeout)
	deliveryID, err := q.sender.Send(sendCtx, job.Phone, job.Text)
	cancel()

	if err == nil {
		q.finalize(job, model.MessageSent, deliveryID, "")
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = provider.NewSendError(provider.KindTransport, "send timed out after %s", q.cfg.SendTimeout)
	}

	attempt := job.Attempt + 1
	if provider.Permanent(err) || attempt >= q.cfg.MaxAttempts {
		q.finalize(job, model.MessageFailed, "", err.Error())
		return
	}

	job.Attempt = attempt
	delay := q.cfg.BackoffBase << (attempt - 1)
	q.log.Warn().
		Str("job_id", job.ID).
		Str("phone", job.Phone).
		Int("attempt", attempt).
		Dur("backoff", delay).
		Err(err).
		Msg("send failed, scheduling retry")

	// Back to waiting for accounting purposes; the job only becomes
	// releasable once the backoff timer re-appends it.
	q.nActive.Add(-1)
	q.nWaiting.Add(1)

	q.mu.Lock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.waiting = append(q.waiting, job)
		q.mu.Unlock()
		q.signal()
	})
	q.timers[timer] = struct{}{}
	q.mu.Unlock()
}

func (q *DispatchQueue) finalize(job *Job, status, deliveryID, errDetail string) {
	now := time.Now().UTC()
	q.putRecord(model.MessageRecord{
		CampaignID: job.CampaignID,
		Phone:      job.Phone,
		Status:     status,
		DeliveryID: deliveryID,
		Error:      errDetail,
		Timestamp:  now,
	})
	q.appendHistory(model.HistoryEntry{
		CampaignID: job.CampaignID,
		Phone:      job.Phone,
		Status:     status,
		DeliveryID: deliveryID,
		Error:      errDetail,
		Timestamp:  now,
	})

	q.nActive.Add(-1)
	if status == model.MessageSent {
		q.nCompleted.Add(1)
		q.log.Debug().Str("phone", job.Phone).Str("delivery_id", deliveryID).Msg("message sent")
	} else {
		q.nFailed.Add(1)
		q.log.Warn().Str("phone", job.Phone).Str("error", errDetail).Msg("message failed permanently")
	}

	if q.onTerminal != nil {
		q.onTerminal(job.CampaignID)
	}
}

// putRecord writes through to the store. Store failures are logged and
// swallowed: one slow or broken store write must not stall dispatch.
func (q *DispatchQueue) putRecord(rec model.MessageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.PutMessageStatus(ctx, rec); err != nil {
		q.log.Error().
			Str("campaign_id", rec.CampaignID).
			Str("phone", rec.Phone).
			Err(err).
			Msg("status write failed, outcome may be lost")
	}
}

func (q *DispatchQueue) appendHistory(entry model.HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.AppendHistory(ctx, entry); err != nil {
		q.log.Error().Err(err).Msg("history write failed")
	}
}
