package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// Stage statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Stage is one ordered step of a job.
type Stage struct {
	Name string
	// Requires names an earlier stage that must succeed for this one to run.
	Requires string
	Run      func(ctx context.Context, rc model.RunContext) error
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the outcome of one run of a job.
type RunResult struct {
	RunID     uuid.UUID     `json:"run_id"`
	Job       string        `json:"job"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stages    []StageResult `json:"stages"`
}

// Status is "ok" when every stage succeeded and "failed" otherwise.
func (r RunResult) Status() string {
	for _, s := range r.Stages {
		if s.Status != StatusOK {
			return StatusFailed
		}
	}
	return StatusOK
}

// Pipeline runs its stages in order with one shared RunContext. A failing
// stage is logged and the next stage still runs, except stages that require
// it, which are skipped.
type Pipeline struct {
	job    string
	stages []Stage
	logger logger.Logger
}

// NewPipeline creates a pipeline for job.
func NewPipeline(job string, log logger.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{job: job, stages: stages, logger: log}
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes every stage and reports each outcome.
func (p *Pipeline) Run(ctx context.Context, rc model.RunContext) RunResult {
	start := time.Now()
	res := RunResult{
		RunID:     rc.RunID,
		Job:       rc.Job,
		Trigger:   rc.Trigger,
		StartedAt: rc.StartedAt,
		Stages:    make([]StageResult, 0, len(p.stages)),
	}
	status := make(map[string]string, len(p.stages))

	for _, st := range p.stages {
		sr := StageResult{Name: st.Name}

		switch {
		case ctx.Err() != nil:
			sr.Status = StatusSkipped
			sr.Error = ctx.Err().Error()
		case st.Requires != "" && status[st.Requires] != StatusOK:
			sr.Status = StatusSkipped
			sr.Error = st.Requires + " did not succeed"
			p.logger.Warn(ctx, "stage skipped",
				logger.String("run_id", rc.RunID.String()),
				logger.String("stage", st.Name),
				logger.String("requires", st.Requires),
			)
		default:
			stageStart := time.Now()
			err := st.Run(ctx, rc)
			sr.Duration = time.Since(stageStart)
			metrics.RecordStage(st.Name, sr.Duration, err != nil)
			if err != nil {
				sr.Status = StatusFailed
				sr.Error = err.Error()
				metrics.RecordErrorByComponent("pipeline", st.Name)
				p.logger.Error(ctx, "stage failed",
					logger.String("run_id", rc.RunID.String()),
					logger.String("stage", st.Name),
					logger.Duration("duration", sr.Duration),
					logger.Error(err),
				)
			} else {
				sr.Status = StatusOK
				p.logger.Info(ctx, "stage finished",
					logger.String("run_id", rc.RunID.String()),
					logger.String("stage", st.Name),
					logger.Duration("duration", sr.Duration),
				)
			}
		}

		status[st.Name] = sr.Status
		res.Stages = append(res.Stages, sr)
	}

	res.Duration = time.Since(start)
	return res
}
