package program

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"storycast/cache"
	"storycast/core/audio"
	"storycast/db"
	"storycast/logger"
	"storycast/model"
	"storycast/repository"
	"storycast/storage"
)

// Pipeline 串起从认领任务到发布节目的完整流程。
// 每个任务独占一个临时目录，所有退出路径上都会清理并释放锁。
// 各阶段对象在任务开始时按当前配置快照现建，
// 热加载的调优参数对下一个任务自然生效。
type Pipeline struct {
	lock     *GenerationLock
	jobs     repository.JobRepository
	runs     repository.RunRepository // 可为nil，审计落库是尽力而为
	store    storage.ObjectStore
	engine   audio.Engine
	tempRoot string
	settings func() Settings

	// OnStatusChange 任务状态变化回调，WebSocket推送用。可为nil。
	OnStatusChange func(job *model.Job)
}

func NewPipeline(lock *GenerationLock, jobs repository.JobRepository, runs repository.RunRepository,
	store storage.ObjectStore, engine audio.Engine, tempRoot string, settings func() Settings) *Pipeline {
	if settings == nil {
		settings = CurrentSettings
	}
	return &Pipeline{
		lock:     lock,
		jobs:     jobs,
		runs:     runs,
		store:    store,
		engine:   engine,
		tempRoot: tempRoot,
		settings: settings,
	}
}

// stageSet 一次任务使用的阶段对象，调优参数已固化在内
type stageSet struct {
	mat        *Materializer
	analyzer   *Analyzer
	normalizer *Normalizer
	assembler  *Assembler
	publisher  *Publisher
}

func (p *Pipeline) buildStages() *stageSet {
	st := p.settings()
	return &stageSet{
		mat:        NewMaterializer(p.store, p.engine, st.DefaultSilenceSecs, st.FetchTimeout),
		analyzer:   NewAnalyzer(p.engine, st.DefaultTargetLUFS, st.AnalyzeTimeout),
		normalizer: NewNormalizer(p.engine, st.NormalizeTimeout),
		assembler:  NewAssembler(p.store, p.engine, st.DuckVolume, st.MinSegmentsForBed, st.AssembleTimeout, st.AudioBitrate),
		publisher:  NewPublisher(p.store, st.PublicBaseURL, st.FailureCooldown),
	}
}

// Run 处理一个任务。立即派发和定时扫描都会调到这里，
// 以原子认领保证同一任务只被处理一次；重复调用是安全的。
func (p *Pipeline) Run(ctx context.Context, job *model.Job) error {
	claimed, err := p.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		logger.Debug("任务已被认领，跳过", logger.String("jobId", job.ID))
		return nil
	}

	job.Status = model.JobStatusProcessing
	now := time.Now()
	job.StartedAt = &now
	p.notify(ctx, job)

	sg := p.buildStages()

	if !p.lock.Acquire(job.Key, job.ID) {
		// 锁竞争不是生成错误，只标记任务失败，
		// 不写错误清单，免得熔断冷却压住正常的再生成检查
		p.markFailed(ctx, job, time.Now(), StageOutcome{}, fmt.Errorf("generation already in progress for %s", job.Key.String()))
		return nil
	}
	defer p.lock.Release(job.Key)

	tempDir := filepath.Join(p.tempRoot, "job-"+job.ID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		p.fail(ctx, sg, job, now, StageOutcome{}, fmt.Errorf("create temp dir: %w", err))
		return nil
	}
	defer os.RemoveAll(tempDir)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("流水线发生panic",
				logger.String("jobId", job.ID),
				logger.Any("panic", r))
			p.fail(ctx, sg, job, now, StageOutcome{}, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	p.execute(ctx, sg, job, tempDir, now)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, sg *stageSet, job *model.Job, tempDir string, startedAt time.Time) {
	overall := StageOutcome{}

	materialized, outcome, err := sg.mat.Materialize(ctx, tempDir, job.Segments)
	overall.Merge(outcome)
	if err != nil {
		p.fail(ctx, sg, job, startedAt, overall, fmt.Errorf("materialize: %w", err))
		return
	}

	targetLUFS, outcome := sg.analyzer.TargetLevel(ctx, materialized)
	overall.Merge(outcome)

	overall.Merge(sg.normalizer.Normalize(ctx, materialized, targetLUFS))

	finalPath, outcome, err := sg.assembler.Assemble(ctx, tempDir, materialized, backgroundURL(job.Segments))
	overall.Merge(outcome)
	if err != nil {
		p.fail(ctx, sg, job, startedAt, overall, fmt.Errorf("assemble: %w", err))
		return
	}

	programSecs, err := p.engine.Duration(ctx, finalPath)
	if err != nil {
		logger.Warn("成品时长探测失败", logger.String("path", finalPath), logger.ErrorField(err))
		programSecs = 0
	}

	programURL, manifest, err := sg.publisher.Publish(ctx, job.Key, finalPath, recordingFileNames(job.Segments))
	if err != nil {
		p.fail(ctx, sg, job, startedAt, overall, fmt.Errorf("publish: %w", err))
		return
	}

	job.Status = model.JobStatusCompleted
	job.ProgramURL = programURL
	job.Manifest = manifest
	if err := p.jobs.CompleteJob(ctx, job); err != nil {
		logger.Error("任务完成状态写入失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}
	p.notify(ctx, job)
	p.record(ctx, job, startedAt, overall, targetLUFS, len(materialized), programSecs, "")

	logger.Info("节目生成完成",
		logger.String("jobId", job.ID),
		logger.String("key", job.Key.String()),
		logger.String("programUrl", programURL),
		logger.Float64("programSecs", programSecs),
		logger.Bool("degraded", overall.Degraded),
		logger.Duration("elapsed", time.Since(startedAt)))
}

// fail 生成失败的统一出口：写错误清单再标记任务失败
func (p *Pipeline) fail(ctx context.Context, sg *stageSet, job *model.Job, startedAt time.Time, outcome StageOutcome, cause error) {
	sg.publisher.PublishFailure(ctx, job.Key, cause.Error())
	p.markFailed(ctx, job, startedAt, outcome, cause)
}

// markFailed 标记任务失败并落审计，不碰节目清单
func (p *Pipeline) markFailed(ctx context.Context, job *model.Job, startedAt time.Time, outcome StageOutcome, cause error) {
	logger.Error("节目生成失败",
		logger.String("jobId", job.ID),
		logger.String("key", job.Key.String()),
		logger.ErrorField(cause))

	if err := p.jobs.FailJob(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("任务失败状态写入失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}
	job.Status = model.JobStatusFailed
	job.ErrorMessage = cause.Error()
	p.notify(ctx, job)
	p.record(ctx, job, startedAt, outcome, 0, len(job.Segments), 0, cause.Error())
}

func (p *Pipeline) notify(ctx context.Context, job *model.Job) {
	if err := cache.SetJob(ctx, job); err != nil {
		logger.Warn("任务状态缓存写入失败", logger.ErrorField(err))
	}
	if p.OnStatusChange != nil {
		p.OnStatusChange(job)
	}
}

func (p *Pipeline) record(ctx context.Context, job *model.Job, startedAt time.Time, outcome StageOutcome, targetLUFS float64, segmentCount int, programSecs float64, failReason string) {
	if p.runs == nil {
		return
	}
	run := &db.ProgramRun{
		JobID:          job.ID,
		World:          job.Key.World,
		OwnerID:        job.Key.OwnerID,
		Language:       job.Key.Language,
		Variant:        job.Key.Variant,
		Succeeded:      failReason == "",
		Degraded:       outcome.Degraded,
		TargetLUFS:     targetLUFS,
		SegmentCount:   segmentCount,
		RecordingCount: len(recordingFileNames(job.Segments)),
		ProgramSecs:    programSecs,
		DurationMs:     time.Since(startedAt).Milliseconds(),
		FailReason:     failReason,
	}
	if outcome.Degraded && failReason == "" {
		run.FailReason = strings.Join(outcome.Notes, "; ")
	}
	if err := p.runs.RecordRun(ctx, run); err != nil {
		logger.Warn("审计记录写入失败", logger.ErrorField(err))
	}
}

// backgroundURL 取第一个携带背景音乐的片段，没有则无配乐
func backgroundURL(segments []model.Segment) string {
	for _, s := range segments {
		if s.Kind == model.SegmentCombineWithBackground && s.BackgroundURL != "" {
			return s.BackgroundURL
		}
	}
	return ""
}

// recordingFileNames 收集所有参与本次节目的用户录音文件名，
// 排序后写进清单供下次生成决策对比。
func recordingFileNames(segments []model.Segment) []string {
	var names []string
	for _, s := range segments {
		switch s.Kind {
		case model.SegmentRecording:
			names = append(names, path.Base(s.SourceURL))
		case model.SegmentCombineWithBackground:
			for _, u := range s.AnswerURLs {
				names = append(names, path.Base(u))
			}
		}
	}
	sort.Strings(names)
	return names
}
