// Package poller runs the billing pulls on their intervals and hands each
// cycle's documents to the sink as one batch.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	"github.com/banzaicloud/ess-billing-exporter/billing"
	"github.com/banzaicloud/ess-billing-exporter/enrich"
	"github.com/banzaicloud/ess-billing-exporter/sink"
)

// Task names, used in logs and metric labels.
const (
	TaskAccount      = "account"
	TaskOrganization = "organization"
	TaskDeployments  = "deployments"
	TaskItemized     = "itemized"
	TaskCharts       = "charts"
)

// Fetcher reads the billing API.
type Fetcher interface {
	Get(ctx context.Context, endpoint string) (map[string]any, error)
	OrganizationID(ctx context.Context) (string, error)
}

// Recorder receives the outcome of every cycle.
type Recorder interface {
	CycleDone(d time.Duration)
	FetchFailed(task string)
	SchemaFailed(task string, n int)
	TaskSucceeded(task string, at time.Time)
	DocumentsWritten(index string, n int)
	SinkFailed(n int)
}

type Intervals struct {
	Organization time.Duration
	Deployments  time.Duration
	Itemized     time.Duration
	Charts       time.Duration
}

type Indices struct {
	Organization string
	Deployments  string
	Itemized     string
	Charts       string
}

type Config struct {
	// OrgID is resolved from the account endpoint when empty.
	OrgID     string
	Tick      time.Duration
	Intervals Intervals
	Indices   Indices
}

// Timers holds when each pull last ran. A zero time means the pull is due.
// Account is the last organization id lookup; it shares the deployments
// interval.
type Timers struct {
	Account      time.Time
	Organization time.Time
	Deployments  time.Time
	Itemized     time.Time
	Charts       time.Time
}

// Result summarizes one cycle.
type Result struct {
	CycleID string
	// Documents counts the batch per index.
	Documents    map[string]int
	FetchErrors  int
	SchemaErrors int
	Duration     time.Duration
}

// Total returns the size of the cycle's batch.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Documents {
		n += c
	}
	return n
}

// Poller owns the pull timers and the last fetched deployment inventory.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	sink     sink.Sink
	recorder Recorder
	now      func() time.Time

	orgID       string
	timers      Timers
	deployments []enrich.Deployment
	inventoried bool
}

// Option customizes a Poller.
type Option func(*Poller)

func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New returns a Poller with every pull due.
func New(cfg Config, f Fetcher, s sink.Sink, opts ...Option) *Poller {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	p := &Poller{
		cfg:      cfg,
		fetcher:  f,
		sink:     s,
		recorder: nopRecorder{},
		now:      time.Now,
		orgID:    cfg.OrgID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Timers returns when each pull last ran.
func (p *Poller) Timers() Timers {
	return p.timers
}

// Run runs a cycle right away and then one per tick until ctx is done or
// the sink fails. Sink failures are not retried.
func (p *Poller) Run(ctx context.Context) error {
	log.Infof("Starting main loop [tick=%s]", p.cfg.Tick)

	if _, err := p.Cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Poll loop shutting down")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// Cycle runs every due pull, collects their documents into one batch and
// writes it. Fetch and schema failures are logged and counted; only a
// sink failure or a cancelled context is returned.
func (p *Poller) Cycle(ctx context.Context) (*Result, error) {
	start := p.now()
	res := &Result{CycleID: ksuid.New().String(), Documents: map[string]int{}}
	logger := log.WithField("cycle", res.CycleID)
	ran := false
	defer func() {
		res.Duration = p.now().Sub(start)
		if ran {
			p.recorder.CycleDone(res.Duration)
		}
	}()

	if p.orgID == "" {
		if _, ok := p.due(p.timers.Account, p.cfg.Intervals.Deployments, start); !ok {
			return res, ctx.Err()
		}
		ran = true
		p.timers.Account = start
		id, err := p.fetcher.OrganizationID(ctx)
		if err != nil {
			p.fetchFailed(logger, res, TaskAccount, billing.AccountEndpoint, err)
			return res, ctx.Err()
		}
		p.orgID = id
		logger.Infof("Resolved organization [org_id=%s]", id)
	}

	var batch []enrich.Document

	if elapsed, ok := p.due(p.timers.Deployments, p.cfg.Intervals.Deployments, start); ok {
		ran = true
		logger.Infof("calling pull deployments after %s", elapsed)
		batch = append(batch, p.pullDeployments(ctx, logger, res, start)...)
		p.timers.Deployments = start
	}

	if elapsed, ok := p.due(p.timers.Organization, p.cfg.Intervals.Organization, start); ok {
		ran = true
		logger.Infof("calling pull org summary after %s", elapsed)
		batch = append(batch, p.pullOrgSummary(ctx, logger, res, start)...)
		p.timers.Organization = start
	}

	if elapsed, ok := p.due(p.timers.Itemized, p.cfg.Intervals.Itemized, start); ok {
		if p.inventoried {
			ran = true
			logger.Infof("calling pull deployment itemized after %s [deployments=%d]", elapsed, len(p.deployments))
			batch = append(batch, p.pullPerDeployment(ctx, logger, res, start, TaskItemized)...)
			p.timers.Itemized = start
		} else {
			logger.Debug("deferring itemized pull until the deployment inventory has been fetched")
		}
	}

	if elapsed, ok := p.due(p.timers.Charts, p.cfg.Intervals.Charts, start); ok {
		if p.inventoried {
			ran = true
			logger.Infof("calling pull deployment charts after %s [deployments=%d]", elapsed, len(p.deployments))
			batch = append(batch, p.pullPerDeployment(ctx, logger, res, start, TaskCharts)...)
			p.timers.Charts = start
		} else {
			logger.Debug("deferring charts pull until the deployment inventory has been fetched")
		}
	}

	for _, d := range batch {
		res.Documents[d.Index]++
	}
	if len(batch) == 0 {
		return res, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		logger.WithError(err).Warnf("discarding batch, poll cancelled [documents=%d]", len(batch))
		return res, err
	}

	logger.Infof("sending payload to bulk [documents=%d]", len(batch))
	if err := p.sink.Write(ctx, batch); err != nil {
		var be *sink.BulkError
		if errors.As(err, &be) {
			p.recorder.SinkFailed(len(be.Failures))
		} else {
			p.recorder.SinkFailed(len(batch))
		}
		return res, fmt.Errorf("write batch: %w", err)
	}
	for index, n := range res.Documents {
		p.recorder.DocumentsWritten(index, n)
	}
	logger.Info("Bulk indexing complete")
	return res, nil
}

func (p *Poller) due(last time.Time, interval time.Duration, now time.Time) (time.Duration, bool) {
	if last.IsZero() {
		return 0, true
	}
	elapsed := now.Sub(last)
	return elapsed, elapsed >= interval
}

func (p *Poller) pullDeployments(ctx context.Context, logger *log.Entry, res *Result, now time.Time) []enrich.Document {
	endpoint := billing.DeploymentsEndpoint(p.orgID)
	raw, err := p.fetcher.Get(ctx, endpoint)
	if err != nil {
		p.fetchFailed(logger, res, TaskDeployments, endpoint, err)
		return nil
	}
	p.recorder.TaskSucceeded(TaskDeployments, now)

	docs, deps, err := enrich.Deployments(raw, enrich.Target{Index: p.cfg.Indices.Deployments, Endpoint: endpoint, Timestamp: now})
	if err != nil {
		p.schemaFailed(logger, res, TaskDeployments, err)
	}
	if docs == nil && deps == nil && err != nil {
		// nothing usable in the payload, keep the previous inventory
		return nil
	}
	p.deployments = deps
	p.inventoried = true
	return docs
}

func (p *Poller) pullOrgSummary(ctx context.Context, logger *log.Entry, res *Result, now time.Time) []enrich.Document {
	endpoint := billing.OrgCostsEndpoint(p.orgID)
	raw, err := p.fetcher.Get(ctx, endpoint)
	if err != nil {
		p.fetchFailed(logger, res, TaskOrganization, endpoint, err)
		return nil
	}
	p.recorder.TaskSucceeded(TaskOrganization, now)

	doc, err := enrich.OrgSummary(raw, p.orgID, enrich.Target{Index: p.cfg.Indices.Organization, Endpoint: endpoint, Timestamp: now})
	if err != nil {
		p.schemaFailed(logger, res, TaskOrganization, err)
		return nil
	}
	return []enrich.Document{doc}
}

func (p *Poller) pullPerDeployment(ctx context.Context, logger *log.Entry, res *Result, now time.Time, task string) []enrich.Document {
	var (
		docs   []enrich.Document
		failed bool
	)
	for _, dep := range p.deployments {
		var (
			endpoint string
			index    string
			build    func(enrich.Deployment, map[string]any, enrich.Target) ([]enrich.Document, error)
		)
		switch task {
		case TaskItemized:
			endpoint, index, build = billing.ItemizedEndpoint(p.orgID, dep.ID), p.cfg.Indices.Itemized, enrich.Itemized
		default:
			endpoint, index, build = billing.ChartsEndpoint(p.orgID, dep.ID), p.cfg.Indices.Charts, enrich.Charts
		}

		raw, err := p.fetcher.Get(ctx, endpoint)
		if err != nil {
			p.fetchFailed(logger, res, task, endpoint, err)
			failed = true
			continue
		}

		out, err := build(dep, raw, enrich.Target{Index: index, Endpoint: endpoint, Timestamp: now})
		if err != nil {
			p.schemaFailed(logger, res, task, err)
		}
		docs = append(docs, out...)
	}
	if !failed {
		p.recorder.TaskSucceeded(task, now)
	}
	return docs
}

func (p *Poller) fetchFailed(logger *log.Entry, res *Result, task, endpoint string, err error) {
	res.FetchErrors++
	p.recorder.FetchFailed(task)

	var fe *billing.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		logger.WithError(err).Errorf("billing api returned error [task=%s, endpoint=%s, status=%d]", task, endpoint, fe.StatusCode)
		return
	}
	logger.WithError(err).Errorf("error while calling billing api [task=%s, endpoint=%s]", task, endpoint)
}

func (p *Poller) schemaFailed(logger *log.Entry, res *Result, task string, err error) {
	errs := unjoin(err)
	res.SchemaErrors += len(errs)
	p.recorder.SchemaFailed(task, len(errs))

	for _, e := range errs {
		entry := logger.WithError(e)
		var se *enrich.SchemaError
		if errors.As(e, &se) && se.Record != nil {
			entry = entry.WithField("record", se.Record)
		}
		entry.Errorf("dropping record with unexpected shape [task=%s]", task)
	}
}

// unjoin splits an errors.Join result back into its parts.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

type nopRecorder struct{}

func (nopRecorder) CycleDone(time.Duration)         {}
func (nopRecorder) FetchFailed(string)              {}
func (nopRecorder) SchemaFailed(string, int)        {}
func (nopRecorder) TaskSucceeded(string, time.Time) {}
func (nopRecorder) DocumentsWritten(string, int)    {}
func (nopRecorder) SinkFailed(int)                  {}
