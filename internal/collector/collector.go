package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/gemini"
	"github.com/luke-wagner/PlantCare-Monitor/internal/greg"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/internal/metrics"
	"github.com/luke-wagner/PlantCare-Monitor/internal/realtime"
	"github.com/luke-wagner/PlantCare-Monitor/internal/workerpool"
	"github.com/luke-wagner/PlantCare-Monitor/models"
)

// ErrRunInProgress another run holds the collector
var ErrRunInProgress = errors.New("collection already running")

// Advisor generates care tips (gemini.Client)
type Advisor interface {
	Enabled() bool
	Model() string
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Publisher pushes the display payload to the ESP32 (mqtt.DisplayPublisher)
type Publisher interface {
	PublishDisplay(models.DisplayPayload) error
}

// Options wiring; only Store and Greg are required
type Options struct {
	Store         *database.Store
	Greg          *greg.Client
	Advisor       Advisor
	Publisher     Publisher
	Hub           *realtime.Hub
	Metrics       *metrics.Metrics
	Pool          *workerpool.Pool
	Interval      time.Duration
	RetentionDays int
	AutoInsights  bool
}

// Collector scrapes greg.app on a schedule and keeps the snapshot history
type Collector struct {
	store     *database.Store
	greg      *greg.Client
	advisor   Advisor
	publisher Publisher
	hub       *realtime.Hub
	metrics   *metrics.Metrics
	pool      *workerpool.Pool
	ownPool   bool

	interval      time.Duration
	retentionDays int
	autoInsights  bool

	running atomic.Bool
	trigger chan struct{}

	mu      sync.RWMutex
	lastRun *models.CollectRun
	nextRun time.Time
}

// StatusInfo what GET /collect/status returns
type StatusInfo struct {
	Running bool               `json:"running"`
	LastRun *models.CollectRun `json:"last_run,omitempty"`
	NextRun string             `json:"next_run,omitempty"`
	Pool    workerpool.Stats   `json:"pool"`
}

// New builds a collector; a pool with two workers is created when none is given
func New(opts Options) *Collector {
	c := &Collector{
		store:         opts.Store,
		greg:          opts.Greg,
		advisor:       opts.Advisor,
		publisher:     opts.Publisher,
		hub:           opts.Hub,
		metrics:       opts.Metrics,
		pool:          opts.Pool,
		interval:      opts.Interval,
		retentionDays: opts.RetentionDays,
		autoInsights:  opts.AutoInsights,
		trigger:       make(chan struct{}, 1),
	}
	if c.pool == nil {
		c.pool = workerpool.New(workerpool.Config{Name: "collector", MaxWorkers: 2, Logger: logger.L()})
		c.ownPool = true
	}
	if c.interval <= 0 {
		c.interval = time.Hour
	}
	if run, err := c.store.LatestRun(); err == nil {
		c.lastRun = &run
	}
	return c
}

// Close stops a pool created by New
func (c *Collector) Close() error {
	if c.ownPool {
		return c.pool.Stop(10 * time.Second)
	}
	return nil
}

type plantResult struct {
	id   string
	url  string
	data models.PlantData
}

// Run performs one collection pass
func (c *Collector) Run(ctx context.Context) (models.CollectRun, error) {
	if !c.running.CompareAndSwap(false, true) {
		return models.CollectRun{}, ErrRunInProgress
	}
	defer c.running.Store(false)

	start := time.Now()
	run := models.CollectRun{ID: uuid.NewString(), StartedAt: start, Status: models.RunRunning}
	if err := c.store.StartRun(run.ID, start); err != nil {
		return run, fmt.Errorf("start run: %w", err)
	}
	c.setLastRun(run)
	c.broadcast(realtime.EventCollectStarted, map[string]string{"run_id": run.ID})
	logger.Info("collect %s: started for %s", run.ID, c.greg.Username())

	runErr := c.collect(ctx, &run)

	run.FinishedAt = time.Now()
	if runErr != nil && run.Error == "" {
		run.Error = runErr.Error()
	}
	if err := c.store.FinishRun(run); err != nil {
		logger.Error("collect %s: finish run: %v", run.ID, err)
	}
	c.setLastRun(run)
	c.metrics.RecordRun(run.Status, run.FinishedAt.Sub(start), run.PlantsFound)

	c.prune()
	c.publish(ctx)

	c.broadcast(realtime.EventCollectFinished, run)
	logger.Info("collect %s: %s, %d/%d plants stored in %s",
		run.ID, run.Status, run.PlantsStored, run.PlantsFound, run.FinishedAt.Sub(start).Round(time.Millisecond))
	return run, runErr
}

func (c *Collector) collect(ctx context.Context, run *models.CollectRun) error {
	run.Status = models.RunFailed

	page, err := c.greg.FetchProfile(ctx)
	if err != nil {
		c.metrics.ScrapeError("profile")
		return fmt.Errorf("fetch profile: %w", err)
	}
	ids := greg.FindPlantIDs(page, c.greg.Username())
	run.PlantsFound = len(ids)
	if len(ids) == 0 {
		return fmt.Errorf("no plants found on %s", c.greg.ProfileURL())
	}

	results := make([]plantResult, len(ids))
	tasks := make([]workerpool.Task, len(ids))
	for i, id := range ids {
		i, id := i, id
		tasks[i] = workerpool.Task{ID: id, Fn: func(ctx context.Context) error {
			html, err := c.greg.FetchPlant(ctx, id)
			if err != nil {
				c.metrics.ScrapeError("plant")
				return err
			}
			data, err := greg.ExtractPlantData(html)
			if err != nil {
				c.metrics.ScrapeError("parse")
				return err
			}
			results[i] = plantResult{id: id, url: c.greg.PlantURL(id), data: data}
			return nil
		}}
	}
	errs := c.pool.RunAll(ctx, tasks)

	var stored []plantResult
	for i, res := range results {
		if errs[i] != nil {
			logger.Warn("collect %s: plant %s: %v", run.ID, ids[i], errs[i])
			continue
		}
		if err := c.storePlant(run.ID, res); err != nil {
			c.metrics.ScrapeError("store")
			logger.Error("collect %s: store plant %s: %v", run.ID, res.id, err)
			continue
		}
		stored = append(stored, res)
		c.metrics.PlantScraped()
		c.broadcast(realtime.EventPlantUpdated, map[string]interface{}{
			"id":   res.id,
			"name": res.data.Name(),
			"data": res.data,
		})
	}
	run.PlantsStored = len(stored)

	if c.autoInsights && c.advisor != nil && c.advisor.Enabled() {
		for _, res := range stored {
			if ctx.Err() != nil {
				break
			}
			if _, err := c.generateInsight(ctx, res.id, res.data); err != nil {
				logger.Warn("collect %s: insight for %s: %v", run.ID, res.id, err)
			}
		}
	}

	switch {
	case run.PlantsStored == run.PlantsFound:
		run.Status = models.RunSuccess
	case run.PlantsStored > 0:
		run.Status = models.RunPartial
		run.Error = fmt.Sprintf("%d of %d plants failed", run.PlantsFound-run.PlantsStored, run.PlantsFound)
	default:
		run.Error = fmt.Sprintf("all %d plants failed", run.PlantsFound)
		return errors.New(run.Error)
	}
	return nil
}

func (c *Collector) storePlant(runID string, res plantResult) error {
	now := time.Now()
	if err := c.store.UpsertPlant(models.Plant{
		ID:       res.id,
		Name:     res.data.Name(),
		Species:  res.data.Species(),
		URL:      res.url,
		LastSeen: now,
	}); err != nil {
		return err
	}
	_, err := c.store.InsertSnapshot(models.Snapshot{PlantID: res.id, RunID: runID, TakenAt: now, Data: res.data})
	return err
}

func (c *Collector) prune() {
	if c.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -c.retentionDays)
	n, err := c.store.PruneSnapshots(cutoff)
	if err != nil {
		logger.Error("prune snapshots: %v", err)
		return
	}
	if n > 0 {
		logger.Info("pruned %d snapshots older than %d days", n, c.retentionDays)
	}
}

func (c *Collector) publish(ctx context.Context) {
	if c.publisher == nil {
		return
	}
	payload, err := c.Display(ctx)
	if err != nil {
		logger.Error("build display payload: %v", err)
		return
	}
	if err := c.publisher.PublishDisplay(payload); err != nil {
		logger.Debug("publish display: %v", err)
	}
}

func (c *Collector) broadcast(event string, data interface{}) {
	if c.hub != nil {
		c.hub.Broadcast(event, data)
	}
}

func (c *Collector) setLastRun(run models.CollectRun) {
	c.mu.Lock()
	c.lastRun = &run
	c.mu.Unlock()
}

// Start runs once right away and then every interval until ctx is done.
// Trigger requests an extra run. Runs are skipped while no username is set.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runLogged(ctx)
	c.setNextRun(time.Now().Add(c.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runLogged(ctx)
			c.setNextRun(time.Now().Add(c.interval))
		case <-c.trigger:
			c.runLogged(ctx)
		}
	}
}

// SetUsername points the collector at another greg.app account
func (c *Collector) SetUsername(username string) {
	c.greg.SetUsername(username)
}

// Username greg.app account being collected; empty until configured
func (c *Collector) Username() string {
	return c.greg.Username()
}

func (c *Collector) runLogged(ctx context.Context) {
	if c.greg.Username() == "" {
		logger.Debug("collect skipped: greg username not configured")
		return
	}
	if _, err := c.Run(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			logger.Debug("collect skipped: %v", err)
			return
		}
		logger.Error("collect: %v", err)
	}
}

func (c *Collector) setNextRun(t time.Time) {
	c.mu.Lock()
	c.nextRun = t
	c.mu.Unlock()
}

// Trigger asks Start for an immediate run; false when one is already pending
func (c *Collector) Trigger() bool {
	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status running flag, last run and pool counters
func (c *Collector) Status() StatusInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := StatusInfo{Running: c.running.Load(), Pool: c.pool.Stats()}
	if c.lastRun != nil {
		run := *c.lastRun
		info.LastRun = &run
	}
	if !c.nextRun.IsZero() {
		info.NextRun = c.nextRun.Format(time.RFC3339)
	}
	return info
}

// Insight asks the advisor for a tip based on the plant's latest snapshot
func (c *Collector) Insight(ctx context.Context, plantID string) (models.Insight, error) {
	if c.advisor == nil || !c.advisor.Enabled() {
		return models.Insight{}, gemini.ErrNoAPIKey
	}
	if _, err := c.store.GetPlant(plantID); err != nil {
		return models.Insight{}, err
	}
	snap, err := c.store.LatestSnapshot(plantID)
	if err != nil {
		return models.Insight{}, err
	}
	return c.generateInsight(ctx, plantID, snap.Data)
}

func (c *Collector) generateInsight(ctx context.Context, plantID string, data models.PlantData) (models.Insight, error) {
	prompt := gemini.CarePrompt(data)
	text, err := c.advisor.GenerateContent(ctx, prompt)
	c.metrics.GeminiRequest(err)
	if err != nil {
		return models.Insight{}, err
	}
	in := models.Insight{
		PlantID:   plantID,
		Model:     c.advisor.Model(),
		Prompt:    prompt,
		Text:      text,
		CreatedAt: time.Now(),
	}
	id, err := c.store.InsertInsight(in)
	if err != nil {
		return models.Insight{}, err
	}
	in.ID = id
	c.broadcast(realtime.EventInsightCreated, in)
	return in, nil
}
