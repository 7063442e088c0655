// Package syncer 周期性地对已声明的资源执行 UpdateFile，并汇总每一轮的结果。
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/unicdn/internal/logging"
)

// DefaultConcurrency 为单轮同步内同时更新的资源数量上限。
const DefaultConcurrency = 4

// Updater 是 syncer 对缓存引擎的最小依赖。
type Updater interface {
	UpdateFileFrom(ctx context.Context, localSubPath, remoteSubPath string) (bool, error)
}

// Resource 描述一个需要保持最新的资源。
type Resource struct {
	Name       string
	Path       string
	RemotePath string
}

func (r Resource) remotePath() string {
	if r.RemotePath == "" {
		return r.Path
	}
	return r.RemotePath
}

// Options 控制同步节奏与并发。
type Options struct {
	Interval    time.Duration
	Concurrency int
	Logger      *logrus.Logger
}

// Result 记录单个资源在一轮同步中的结果。
type Result struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Report 汇总一轮同步。
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Updated    int       `json:"updated"`
	UpToDate   int       `json:"up_to_date"`
	Failed     int       `json:"failed"`
	Results    []Result  `json:"results"`
}

// Err 在本轮存在失败资源时返回非空错误。
func (r *Report) Err() error {
	if r == nil || r.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, r.Failed)
	for _, res := range r.Results {
		if res.Error != "" {
			errs = append(errs, errors.New(res.Name+": "+res.Error))
		}
	}
	return errors.Join(errs...)
}

// Syncer 持有资源列表与最近一次报告。
type Syncer struct {
	updater   Updater
	resources []Resource
	opts      Options
	logger    *logrus.Logger

	mu   sync.RWMutex
	last *Report
}

// New 构造 Syncer；Concurrency<=0 时使用 DefaultConcurrency。
func New(updater Updater, resources []Resource, opts Options) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	copied := make([]Resource, len(resources))
	copy(copied, resources)
	return &Syncer{
		updater:   updater,
		resources: copied,
		opts:      opts,
		logger:    logger,
	}
}

// RunOnce 对所有资源执行一次更新。单个资源失败不会中断其它资源，失败记录在报告中。
func (s *Syncer) RunOnce(ctx context.Context) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, len(s.resources)),
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, res := range s.resources {
		i, res := i, res
		g.Go(func() error {
			report.Results[i] = s.syncOne(ctx, res)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range report.Results {
		switch {
		case res.Error != "":
			report.Failed++
		case res.Updated:
			report.Updated++
		default:
			report.UpToDate++
		}
	}
	report.FinishedAt = time.Now().UTC()

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	entry := s.logger.WithFields(logrus.Fields{
		"action":     "sync",
		"run_id":     report.RunID,
		"resources":  len(report.Results),
		"updated":    report.Updated,
		"up_to_date": report.UpToDate,
		"failed":     report.Failed,
		"elapsed_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})
	if report.Failed > 0 {
		entry.Warn("sync_finished_with_failures")
	} else {
		entry.Info("sync_finished")
	}
	return report
}

// Run 立即执行一轮同步，随后按 Interval 周期执行，直到 ctx 结束。Interval<=0 时只执行一轮。
func (s *Syncer) Run(ctx context.Context) {
	s.RunOnce(ctx)
	if s.opts.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Last 返回最近一轮的报告，尚未运行时为 nil。
func (s *Syncer) Last() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Resources 返回资源列表副本。
func (s *Syncer) Resources() []Resource {
	out := make([]Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

func (s *Syncer) syncOne(ctx context.Context, res Resource) Result {
	started := time.Now()
	result := Result{Name: res.Name, Path: res.Path}

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	updated, err := s.updater.UpdateFileFrom(ctx, res.Path, res.remotePath())
	result.Updated = updated
	result.ElapsedMS = time.Since(started).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		s.logger.WithFields(logrus.Fields{
			"action":   "sync",
			"resource": res.Name,
			"path":     res.Path,
			"error":    err.Error(),
		}).Warn("resource_sync_failed")
	}
	return result
}
