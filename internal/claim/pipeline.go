package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/common"
)

// Report summarizes a finished stage for the audit trail
type Report struct {
	Message  string
	Metadata map[string]any
}

// Stage is one step of the claim pipeline. A returned error aborts the run;
// per-document problems are recorded on the documents instead.
type Stage interface {
	Name() string
	Completes() audit.EventType
	Run(ctx context.Context, pc *Context) (Report, error)
}

// StageError wraps a stage failure with the stage that raised it
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

const pipelineComponent = "Pipeline"

// Pipeline runs stages strictly in order over one Context
type Pipeline struct {
	stages []Stage
	trail  *audit.Trail
	logger *slog.Logger
}

func NewPipeline(trail *audit.Trail, logger *slog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, trail: trail, logger: logger}
}

// Run executes every stage and records a completion event after each one.
// The first stage error is recorded as PIPELINE_ERROR and returned.
func (p *Pipeline) Run(ctx context.Context, pc *Context) error {
	p.trail.LogEvent(pc.AuditLog, pipelineComponent, audit.PipelineStart,
		fmt.Sprintf("Pipeline started for claim %s", pc.ClaimID),
		audit.WithMetadata(map[string]any{"links": len(pc.Links)}))

	for _, stage := range p.stages {
		p.logger.Debug("running stage", "claim_id", pc.ClaimID, "stage", stage.Name())

		report, err := stage.Run(ctx, pc)
		if err != nil {
			stageErr := &StageError{Stage: stage.Name(), Err: err}
			p.trail.LogEvent(pc.AuditLog, pipelineComponent, audit.PipelineError,
				fmt.Sprintf("Pipeline failed: %v", err),
				audit.WithError(map[string]any{
					"error": err.Error(),
					"code":  common.Code(err),
					"stage": stage.Name(),
				}))
			return stageErr
		}

		opts := []audit.EventOption{}
		if report.Metadata != nil {
			opts = append(opts, audit.WithMetadata(report.Metadata))
		}
		p.trail.LogEvent(pc.AuditLog, stage.Name(), stage.Completes(), report.Message, opts...)
	}

	p.trail.LogEvent(pc.AuditLog, pipelineComponent, audit.PipelineComplete,
		fmt.Sprintf("Pipeline completed successfully for claim %s", pc.ClaimID))
	return nil
}
