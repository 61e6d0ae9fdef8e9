// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/zapblast/zapblast-backend/internal/errors"
	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/phone"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/queue"
	"github.com/zapblast/zapblast-backend/internal/store"
	"github.com/zapblast/zapblast-backend/internal/template"
)

// Dispatcher is the submission side of the dispatch pipeline. The local
// rate-limited queue and the amqp publisher both satisfy it.
type Dispatcher interface {
	Submit(jobs []queue.Job)
	Stats() queue.Stats
}

// Config tunes orchestration behavior; zero values get sane defaults.
type Config struct {
	// SubmitBatchSize is how many jobs go to the dispatcher per batch. The
	// paused flag is re-checked between batches.
	SubmitBatchSize int
	// PausePoll is how often a paused campaign's submitter re-checks status.
	PausePoll time.Duration
	// ScanInterval drives the scheduled-campaign scan loop.
	ScanInterval time.Duration
	// RecoverPending re-submits stale pending records for processing
	// campaigns when the local queue is idle. Leave false when dispatch
	// happens in a separate worker process.
	RecoverPending bool
	// RecoveryAge is how old a pending record must be before recovery
	// considers it lost.
	RecoveryAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitBatchSize <= 0 {
		c.SubmitBatchSize = 100
	}
	if c.PausePoll <= 0 {
		c.PausePoll = 2 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 30 * time.Second
	}
	if c.RecoveryAge <= 0 {
		c.RecoveryAge = 5 * time.Minute
	}
	return c
}

// CampaignService expands campaigns into dispatch jobs, submits them at a
// controlled pace and aggregates resulting stats for the read APIs.
type CampaignService struct {
	cfg        Config
	store      store.Store
	dispatcher Dispatcher
	sender     provider.Sender
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	progress map[string]*campaignProgress
}

// campaignProgress counts terminal outcomes for one campaign so completion
// checks only hit the store once the count looks done.
type campaignProgress struct {
	expected int
	terminal int
}

func NewCampaignService(cfg Config, st store.Store, d Dispatcher, sender provider.Sender, log zerolog.Logger) *CampaignService {
	return &CampaignService{
		cfg:        cfg.withDefaults(),
		store:      st,
		dispatcher: d,
		sender:     sender,
		log:        log.With().Str("component", "campaign_service").Logger(),
		ctx:        context.Background(),
		progress:   map[string]*campaignProgress{},
	}
}

// Start launches the scheduled-campaign scan loop.
func (s *CampaignService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runScan(s.ctx)
}

// Stop halts background loops and waits for in-flight submitters.
func (s *CampaignService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// CreateResult reports what a campaign submission turned into.
type CreateResult struct {
	Campaign        *model.Campaign `json:"campaign"`
	ValidContacts   int             `json:"valid_contacts"`
	InvalidContacts int             `json:"invalid_contacts"`
}

// Create validates and persists a campaign, then begins dispatch unless a
// schedule date defers it. Contacts that fail phone normalization are
// filtered out and counted; a campaign with no valid contact is rejected.
func (s *CampaignService) Create(ctx context.Context, name, messageTemplate string, contacts []model.Contact, scheduleDate *time.Time) (*CreateResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidation("campaign name is required")
	}
	if strings.TrimSpace(messageTemplate) == "" {
		return nil, appErrors.NewValidation("campaign message is required")
	}

	valid := make([]model.Contact, 0, len(contacts))
	invalid := 0
	for _, c := range contacts {
		canonical, err := phone.Normalize(c.Phone)
		if err != nil {
			invalid++
			continue
		}
		c.Phone = canonical
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil, appErrors.NewValidation("no valid contacts found")
	}

	campaign := &model.Campaign{
		ID:              "camp_" + uuid.NewString(),
		Name:            name,
		MessageTemplate: messageTemplate,
		TotalContacts:   len(valid),
		InvalidContacts: invalid,
		Status:          model.StatusPending,
		ScheduleDate:    scheduleDate,
		CreatedAt:       time.Now().UTC(),
	}
	// A schedule date that already passed is treated as "send now".
	if scheduleDate != nil && scheduleDate.After(time.Now()) {
		campaign.Status = model.StatusScheduled
	}

	if err := s.store.PutCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("persist campaign: %w", err)
	}
	if err := s.store.PutContacts(ctx, campaign.ID, valid); err != nil {
		return nil, fmt.Errorf("persist contacts: %w", err)
	}

	s.log.Info().
		Str("campaign_id", campaign.ID).
		Str("name", name).
		Int("valid", len(valid)).
		Int("invalid", invalid).
		Str("status", campaign.Status).
		Msg("campaign created")

	if campaign.Status != model.StatusScheduled {
		s.startDispatch(campaign, valid)
	}

	return &CreateResult{
		Campaign:        campaign,
		ValidContacts:   len(valid),
		InvalidContacts: invalid,
	}, nil
}

// Toggle flips a campaign between paused and its dispatching state. Pausing
// only gates new submission batches; already-released jobs finish.
func (s *CampaignService) Toggle(ctx context.Context, id string) (string, error) {
	campaign, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return "", err
	}
	if campaign == nil {
		return "", appErrors.NewCampaignNotFound(id)
	}

	if campaign.Status == model.StatusPaused {
		campaign.Status = model.StatusProcessing
	} else {
		campaign.Status = model.StatusPaused
	}
	if err := s.store.PutCampaign(ctx, campaign); err != nil {
		return "", err
	}

	s.log.Info().Str("campaign_id", id).Str("status", campaign.Status).Msg("campaign toggled")
	return campaign.Status, nil
}

// CampaignStats is the per-campaign status breakdown.
type CampaignStats struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// CampaignDetail bundles everything the read API shows for one campaign.
type CampaignDetail struct {
	Campaign *model.Campaign       `json:"campaign"`
	Messages []model.MessageRecord `json:"messages"`
	Stats    CampaignStats         `json:"stats"`
}

// Detail returns a campaign with its message records and derived stats.
func (s *CampaignService) Detail(ctx context.Context, id string) (*CampaignDetail, error) {
	campaign, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, appErrors.NewCampaignNotFound(id)
	}

	messages, err := s.store.GetMessageStatuses(ctx, id)
	if err != nil {
		return nil, err
	}

	return &CampaignDetail{
		Campaign: campaign,
		Messages: messages,
		Stats:    computeStats(messages),
	}, nil
}

// List returns all campaigns, newest first.
func (s *CampaignService) List(ctx context.Context) ([]model.Campaign, error) {
	return s.store.ListCampaigns(ctx)
}

// OnTerminal is wired as the dispatch queue's per-outcome hook. When every
// contact of a campaign has a terminal record, the campaign completes.
func (s *CampaignService) OnTerminal(campaignID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	p := s.progress[campaignID]
	if p == nil {
		p = &campaignProgress{}
		s.progress[campaignID] = p
	}
	if p.expected == 0 {
		if c, err := s.store.GetCampaign(ctx, campaignID); err == nil && c != nil {
			p.expected = c.TotalContacts
		}
	}
	p.terminal++
	done := p.expected > 0 && p.terminal >= p.expected
	s.mu.Unlock()

	if done {
		s.tryComplete(ctx, campaignID)
	}
}

// tryComplete verifies against the store before advancing the status, so
// the local terminal count alone cannot complete a campaign early.
func (s *CampaignService) tryComplete(ctx context.Context, campaignID string) {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil || campaign == nil {
		return
	}
	if campaign.Status != model.StatusProcessing {
		return
	}

	messages, err := s.store.GetMessageStatuses(ctx, campaignID)
	if err != nil {
		return
	}
	terminal := 0
	for _, m := range messages {
		if m.Status == model.MessageSent || m.Status == model.MessageFailed {
			terminal++
		}
	}
	if terminal < campaign.TotalContacts {
		return
	}

	campaign.Status = model.StatusCompleted
	if err := s.store.PutCampaign(ctx, campaign); err != nil {
		s.log.Error().Str("campaign_id", campaignID).Err(err).Msg("completion write failed")
		return
	}

	s.mu.Lock()
	delete(s.progress, campaignID)
	s.mu.Unlock()

	s.log.Info().Str("campaign_id", campaignID).Int("messages", terminal).Msg("campaign completed")
}

// startDispatch marks the campaign processing and submits its jobs from a
// background submitter goroutine.
func (s *CampaignService) startDispatch(campaign *model.Campaign, contacts []model.Contact) {
	campaign.Status = model.StatusProcessing
	putCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	err := s.store.PutCampaign(putCtx, campaign)
	cancel()
	if err != nil {
		s.log.Error().Str("campaign_id", campaign.ID).Err(err).Msg("status write failed")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.submitBatches(s.ctx, campaign.ID, campaign.MessageTemplate, contacts)
	}()
}

// submitBatches renders and submits jobs in submission order, re-reading
// the campaign between batches so pausing stops further submission.
func (s *CampaignService) submitBatches(ctx context.Context, campaignID, messageTemplate string, contacts []model.Contact) {
	for start := 0; start < len(contacts); start += s.cfg.SubmitBatchSize {
		if !s.waitWhilePaused(ctx, campaignID) {
			return
		}

		end := start + s.cfg.SubmitBatchSize
		if end > len(contacts) {
			end = len(contacts)
		}

		jobs := make([]queue.Job, 0, end-start)
		for _, c := range contacts[start:end] {
			text := template.Render(messageTemplate, c)
			jobs = append(jobs, queue.NewJob(campaignID, c.Phone, text))
		}
		s.dispatcher.Submit(jobs)

		s.log.Debug().
			Str("campaign_id", campaignID).
			Int("batch", len(jobs)).
			Int("submitted", end).
			Int("total", len(contacts)).
			Msg("batch submitted")
	}
}

// waitWhilePaused blocks while the campaign is paused. It returns false
// when the context ends or the campaign disappears.
func (s *CampaignService) waitWhilePaused(ctx context.Context, campaignID string) bool {
	for {
		getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		campaign, err := s.store.GetCampaign(getCtx, campaignID)
		cancel()
		if err != nil {
			s.log.Error().Str("campaign_id", campaignID).Err(err).Msg("pause check failed")
			return false
		}
		if campaign == nil {
			return false
		}
		if campaign.Status != model.StatusPaused {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.PausePoll):
		}
	}
}

func (s *CampaignService) runScan(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce promotes due scheduled campaigns and, when enabled, recovers
// stale pending records left behind by a crash.
func (s *CampaignService) ScanOnce(ctx context.Context) {
	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("campaign scan failed")
		return
	}

	now := time.Now().UTC()
	for i := range campaigns {
		c := campaigns[i]
		switch {
		case c.Due(now):
			s.promoteScheduled(ctx, &c)
		case c.Status == model.StatusProcessing && s.cfg.RecoverPending:
			s.recoverPending(ctx, &c, now)
		}
	}
}

func (s *CampaignService) promoteScheduled(ctx context.Context, c *model.Campaign) {
	contacts, err := s.store.GetContacts(ctx, c.ID)
	if err != nil || len(contacts) == 0 {
		s.log.Error().Str("campaign_id", c.ID).Err(err).Msg("scheduled campaign has no contact list")
		return
	}
	s.log.Info().
		Str("campaign_id", c.ID).
		Int("contacts", len(contacts)).
		Msg("scheduled campaign due, dispatching")
	s.startDispatch(c, contacts)
}

// recoverPending re-submits contacts whose records sat pending past the
// recovery age, typically after a crash dropped the in-memory queue.
func (s *CampaignService) recoverPending(ctx context.Context, c *model.Campaign, now time.Time) {
	st := s.dispatcher.Stats()
	if st.Waiting+st.Active > 0 {
		return
	}

	messages, err := s.store.GetMessageStatuses(ctx, c.ID)
	if err != nil {
		return
	}
	stale := map[string]bool{}
	for _, m := range messages {
		if m.Status == model.MessagePending && now.Sub(m.Timestamp) >= s.cfg.RecoveryAge {
			stale[m.Phone] = true
		}
	}
	if len(stale) == 0 {
		return
	}

	contacts, err := s.store.GetContacts(ctx, c.ID)
	if err != nil {
		return
	}
	jobs := []queue.Job{}
	for _, contact := range contacts {
		if !stale[contact.Phone] {
			continue
		}
		text := template.Render(c.MessageTemplate, contact)
		jobs = append(jobs, queue.NewJob(c.ID, contact.Phone, text))
	}
	if len(jobs) == 0 {
		return
	}

	s.log.Warn().
		Str("campaign_id", c.ID).
		Int("jobs", len(jobs)).
		Msg("re-submitting stale pending messages")
	s.dispatcher.Submit(jobs)
}

func computeStats(messages []model.MessageRecord) CampaignStats {
	stats := CampaignStats{Total: len(messages)}
	for _, m := range messages {
		switch m.Status {
		case model.MessageSent:
			stats.Sent++
		case model.MessageFailed:
			stats.Failed++
		}
	}
	stats.Pending = stats.Total - stats.Sent - stats.Failed
	stats.SuccessRate = successRate(stats.Sent, stats.Total)
	return stats
}
