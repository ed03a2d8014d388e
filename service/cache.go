package service

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linlinbupt123-crypto/energy_share_service/chain"
	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/logging"
	"github.com/linlinbupt123-crypto/energy_share_service/repository"
)

const (
	entityProject  = "project"
	entityPosition = "position"

	DefaultCacheTTL = 300 * time.Second
)

type CacheOptions struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	// SweepRate caps ledger reads per second during a sweep; 0 disables the cap.
	SweepRate    float64
	SweepWorkers int

	Now     func() time.Time
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

func (o *CacheOptions) normalize() {
	if o.TTL <= 0 {
		o.TTL = DefaultCacheTTL
	}
	if o.SweepWorkers <= 0 {
		o.SweepWorkers = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// SweepReport summarizes one full resync.
type SweepReport struct {
	Refreshed int
	Failed    int
}

// sweep refreshes every key through fn, fanned out over workers and paced by
// limiter. Individual failures are counted, not returned.
func sweep(ctx context.Context, keys []string, workers int, limiter *rate.Limiter, fn func(context.Context, string) error) (SweepReport, error) {
	var ok, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range keys {
		key := key
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}
			if err := fn(gctx, key); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&ok, 1)
			return nil
		})
	}
	err := g.Wait()
	return SweepReport{Refreshed: int(ok), Failed: int(failed)}, err
}

func newLimiter(r float64) *rate.Limiter {
	if r <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(r), 1)
}

// ProjectCache mirrors ledger projects into the store with a TTL.
// Stale entries are served immediately while a single background
// refresh brings them up to date.
type ProjectCache struct {
	gateway chain.Gateway
	repo    repository.ProjectRepository
	opts    CacheOptions
	r       *refresher
}

func NewProjectCache(gateway chain.Gateway, repo repository.ProjectRepository, opts CacheOptions) *ProjectCache {
	opts.normalize()
	return &ProjectCache{
		gateway: gateway,
		repo:    repo,
		opts:    opts,
		r:       newRefresher(opts.RefreshTimeout, opts.Logger.WithField("cache", entityProject)),
	}
}

func (c *ProjectCache) fresh(p *entity.Project) bool {
	return p.IsCacheValid && c.opts.Now().Sub(p.LastSyncedAt) < c.opts.TTL
}

func projectKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (c *ProjectCache) load(id int64) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		l, err := c.gateway.ReadProject(ctx, id)
		if err != nil {
			c.opts.Metrics.refresh(entityProject, err)
			return nil, err
		}
		p, err := c.repo.MergeLedger(ctx, l, c.opts.Now())
		c.opts.Metrics.refresh(entityProject, err)
		return p, err
	}
}

func (c *ProjectCache) refresh(ctx context.Context, id int64) (*entity.Project, error) {
	v, err := c.r.do(ctx, projectKey(id), c.load(id))
	if err != nil {
		return nil, err
	}
	return v.(*entity.Project), nil
}

// Get returns the cached project. A missing or invalid entry, or force,
// loads synchronously from the ledger; a stale entry is returned as is and
// refreshed in the background.
func (c *ProjectCache) Get(ctx context.Context, projectID int64, force bool) (*entity.Project, error) {
	if projectID <= 0 {
		return nil, wrapErrors.Newf(wrapErrors.CodeValidation, "ProjectCache.Get", "invalid project id %d", projectID)
	}
	cached, err := c.repo.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.IsCacheValid && !force {
		if c.fresh(cached) {
			c.opts.Metrics.lookup(entityProject, "fresh")
			return cached, nil
		}
		c.opts.Metrics.lookup(entityProject, "stale")
		c.r.background(projectKey(projectID), c.load(projectID))
		return cached, nil
	}

	if force {
		c.opts.Metrics.lookup(entityProject, "forced")
	} else {
		c.opts.Metrics.lookup(entityProject, "miss")
	}
	p, err := c.refresh(ctx, projectID)
	if err != nil {
		if cached != nil && cached.IsCacheValid && !errors.Is(err, wrapErrors.ErrNotFound) {
			c.opts.Logger.WithError(err).WithField("project_id", projectID).Warn("refresh failed, serving cached project")
			return cached, nil
		}
		return nil, err
	}
	return p, nil
}

// List serves from the store only. Stale members are queued for refresh.
func (c *ProjectCache) List(ctx context.Context, f entity.ProjectFilter) ([]*entity.Project, error) {
	list, err := c.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if !c.fresh(p) {
			c.r.background(projectKey(p.ProjectID), c.load(p.ProjectID))
		}
	}
	return list, nil
}

func (c *ProjectCache) UpdateMetadata(ctx context.Context, projectID int64, m entity.ProjectMetadata) (*entity.Project, error) {
	return c.repo.UpdateMetadata(ctx, projectID, m)
}

// Sweep resyncs every mirrored project regardless of age and picks up
// projects the ledger has issued since the last sweep.
func (c *ProjectCache) Sweep(ctx context.Context) (SweepReport, error) {
	known, err := c.repo.ListIDs(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	seen := make(map[int64]bool, len(known))
	keys := make([]string, 0, len(known))
	for _, id := range known {
		seen[id] = true
		keys = append(keys, projectKey(id))
	}
	onLedger, err := c.gateway.ListProjectIDs(ctx)
	if err != nil {
		c.opts.Logger.WithError(err).Warn("ledger project discovery failed")
	}
	for _, id := range onLedger {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, projectKey(id))
		}
	}

	return c.resync(ctx, keys, "project sweep done")
}

// RefreshStale resyncs only the projects last synced more than one TTL ago.
func (c *ProjectCache) RefreshStale(ctx context.Context) (SweepReport, error) {
	ids, err := c.repo.ListStale(ctx, c.opts.Now().Add(-c.opts.TTL))
	if err != nil {
		return SweepReport{}, err
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, projectKey(id))
	}
	return c.resync(ctx, keys, "stale project refresh done")
}

func (c *ProjectCache) resync(ctx context.Context, keys []string, done string) (SweepReport, error) {
	report, err := sweep(ctx, keys, c.opts.SweepWorkers, newLimiter(c.opts.SweepRate), func(ctx context.Context, key string) error {
		id, _ := strconv.ParseInt(key, 10, 64)
		_, err := c.refresh(ctx, id)
		if err != nil {
			c.opts.Logger.WithError(err).WithField("project_id", id).Warn("sweep refresh failed")
		}
		return err
	})
	c.opts.Logger.WithFields(logrus.Fields{"refreshed": report.Refreshed, "failed": report.Failed}).Info(done)
	return report, err
}

// Wait blocks until background refreshes started so far are done.
func (c *ProjectCache) Wait() { c.r.wait() }

// Close stops accepting background refreshes and drains the running ones.
func (c *ProjectCache) Close() { c.r.close() }

// PositionCache mirrors investor positions keyed by (address, project).
type PositionCache struct {
	gateway chain.Gateway
	repo    repository.PositionRepository
	opts    CacheOptions
	r       *refresher
}

func NewPositionCache(gateway chain.Gateway, repo repository.PositionRepository, opts CacheOptions) *PositionCache {
	opts.normalize()
	return &PositionCache{
		gateway: gateway,
		repo:    repo,
		opts:    opts,
		r:       newRefresher(opts.RefreshTimeout, opts.Logger.WithField("cache", entityPosition)),
	}
}

func (c *PositionCache) fresh(p *entity.Position) bool {
	return p.IsCacheValid && c.opts.Now().Sub(p.LastSyncedAt) < c.opts.TTL
}

func (c *PositionCache) load(address string, projectID int64) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		l, err := c.gateway.ReadPosition(ctx, address, projectID)
		if err != nil {
			c.opts.Metrics.refresh(entityPosition, err)
			return nil, err
		}
		p, err := c.repo.MergeLedger(ctx, l, c.opts.Now())
		c.opts.Metrics.refresh(entityPosition, err)
		return p, err
	}
}

func (c *PositionCache) refresh(ctx context.Context, address string, projectID int64) (*entity.Position, error) {
	v, err := c.r.do(ctx, entity.PositionKey(address, projectID), c.load(address, projectID))
	if err != nil {
		return nil, err
	}
	return v.(*entity.Position), nil
}

func (c *PositionCache) Get(ctx context.Context, address string, projectID int64, force bool) (*entity.Position, error) {
	if address == "" || projectID <= 0 {
		return nil, wrapErrors.New(wrapErrors.CodeValidation, "PositionCache.Get", "address and project id are required")
	}
	cached, err := c.repo.Get(ctx, address, projectID)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.IsCacheValid && !force {
		if c.fresh(cached) {
			c.opts.Metrics.lookup(entityPosition, "fresh")
			return cached, nil
		}
		c.opts.Metrics.lookup(entityPosition, "stale")
		c.r.background(entity.PositionKey(address, projectID), c.load(address, projectID))
		return cached, nil
	}

	if force {
		c.opts.Metrics.lookup(entityPosition, "forced")
	} else {
		c.opts.Metrics.lookup(entityPosition, "miss")
	}
	p, err := c.refresh(ctx, address, projectID)
	if err != nil {
		if cached != nil && cached.IsCacheValid {
			c.opts.Logger.WithError(err).WithField("position", entity.PositionKey(address, projectID)).Warn("refresh failed, serving cached position")
			return cached, nil
		}
		return nil, err
	}
	return p, nil
}

// MarkPurchased records the ledger time of the first confirmed purchase.
func (c *PositionCache) MarkPurchased(ctx context.Context, address string, projectID int64, at time.Time) error {
	return c.repo.SetPurchasedAt(ctx, address, projectID, at)
}

func (c *PositionCache) Sweep(ctx context.Context) (SweepReport, error) {
	keys, err := c.repo.ListKeys(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	return c.resync(ctx, keys, "position sweep done")
}

// RefreshStale resyncs only the positions last synced more than one TTL ago.
func (c *PositionCache) RefreshStale(ctx context.Context) (SweepReport, error) {
	keys, err := c.repo.ListStale(ctx, c.opts.Now().Add(-c.opts.TTL))
	if err != nil {
		return SweepReport{}, err
	}
	return c.resync(ctx, keys, "stale position refresh done")
}

func (c *PositionCache) resync(ctx context.Context, keys []string, done string) (SweepReport, error) {
	report, err := sweep(ctx, keys, c.opts.SweepWorkers, newLimiter(c.opts.SweepRate), func(ctx context.Context, key string) error {
		address, projectID, ok := entity.ParsePositionKey(key)
		if !ok {
			return wrapErrors.Newf(wrapErrors.CodeValidation, "PositionCache.Sweep", "bad position key %q", key)
		}
		_, err := c.refresh(ctx, address, projectID)
		if err != nil {
			c.opts.Logger.WithError(err).WithField("position", key).Warn("sweep refresh failed")
		}
		return err
	})
	c.opts.Logger.WithFields(logrus.Fields{"refreshed": report.Refreshed, "failed": report.Failed}).Info(done)
	return report, err
}

func (c *PositionCache) Wait() { c.r.wait() }

func (c *PositionCache) Close() { c.r.close() }
