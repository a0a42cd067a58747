// Package queue 把接受请求和执行重活解耦：建任务立刻返回，
// 流水线由后台派发或定时扫描触发，并发数有硬上限。
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storycast/cache"
	"storycast/core/program"
	"storycast/logger"
	"storycast/model"
	"storycast/repository"

	"github.com/google/uuid"
)

// ErrBusy 同一生成键已有任务在排队或执行
var ErrBusy = errors.New("a generation is already in flight for this key")

// Runner 执行一个任务的完整流水线
type Runner interface {
	Run(ctx context.Context, job *model.Job) error
}

// Queue 任务队列
type Queue struct {
	jobs     repository.JobRepository
	lock     *program.GenerationLock
	pipeline Runner

	sem           chan struct{} // 限制同时执行的流水线数量
	sweepInterval time.Duration
	lockMaxAge    time.Duration
	jobTimeout    time.Duration // 单个任务的总时限，兜住所有阶段
}

func New(jobs repository.JobRepository, lock *program.GenerationLock, pipeline Runner,
	maxConcurrent int, sweepInterval time.Duration) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		jobs:          jobs,
		lock:          lock,
		pipeline:      pipeline,
		sem:           make(chan struct{}, maxConcurrent),
		sweepInterval: sweepInterval,
		lockMaxAge:    10 * time.Minute,
		jobTimeout:    10 * time.Minute,
	}
}

// CreateJob 校验输入并持久化pending任务，随即尽力派发。
// 派发失败不影响返回，定时扫描会兜底捡起任务。
func (q *Queue) CreateJob(ctx context.Context, key model.GenerationKey, segments []model.Segment) (*model.Job, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("segment list must not be empty")
	}
	for i := range segments {
		if err := segments[i].Validate(i); err != nil {
			return nil, err
		}
	}

	if q.lock.IsHeld(key) {
		return nil, ErrBusy
	}
	if active, err := q.jobs.FindActiveJob(ctx, key); err != nil {
		return nil, fmt.Errorf("check active jobs: %w", err)
	} else if active != nil {
		return active, ErrBusy
	}

	job := &model.Job{
		ID:        uuid.NewString(),
		Key:       key,
		Status:    model.JobStatusPending,
		Segments:  segments,
		FileCount: len(segments),
		CreatedAt: time.Now(),
	}
	if err := q.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	if err := cache.SetJob(ctx, job); err != nil {
		logger.Warn("任务状态缓存写入失败", logger.ErrorField(err))
	}

	go q.dispatch(job)

	logger.Info("任务已创建",
		logger.String("jobId", job.ID),
		logger.String("key", key.String()),
		logger.Int("segments", len(segments)))
	return job, nil
}

// GetJob 状态查询：缓存快路径，未命中落库
func (q *Queue) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if cached, err := cache.GetJob(ctx, jobID); err == nil && cached != nil {
		return cached, nil
	}
	return q.jobs.GetJob(ctx, jobID)
}

// dispatch 受信号量约束的执行入口，认领逻辑在流水线里。
// 整个任务带总时限，任何阶段卡死都不会永久占住工作槽。
func (q *Queue) dispatch(job *model.Job) {
	q.sem <- struct{}{}
	defer func() { <-q.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()

	if err := q.pipeline.Run(ctx, job); err != nil {
		logger.Error("任务派发执行失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
}

// Start 启动定时扫描和锁兜底清理，stop关闭后退出
func (q *Queue) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.sweep()
			q.lock.CleanupExpired(q.lockMaxAge)
		}
	}
}

// sweep 捡起漏派发的pending任务。和立即派发重复执行是安全的，
// 认领以原子状态切换保证同一任务只会被处理一次。
func (q *Queue) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pending, err := q.jobs.ListPendingJobs(ctx, 10)
	cancel()
	if err != nil {
		logger.Error("扫描待处理任务失败", logger.ErrorField(err))
		return
	}

	for _, job := range pending {
		logger.Info("扫描捡起待处理任务", logger.String("jobId", job.ID))
		go q.dispatch(job)
	}
}
