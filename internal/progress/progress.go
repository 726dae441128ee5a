// Package progress implements the Progress Publisher (C6): a pure
// derivation of step/percent/current_file from Task Store state (no
// separate cache), plus a push path over the teacher's pubsub/ws hub
// for UI clients that don't want to poll.
package progress

import (
	"github.com/qs3c/repoanalyzer/internal/model"
)

// Step mirrors the UI-facing stage name, distinct from the internal
// PipelineStage enum so a "queued" pre-admission state can be
// represented without inventing a fifth pipeline stage.
type Step string

const (
	StepQueued   Step = "queued"
	StepScan     Step = "scan"
	StepIndex    Step = "index"
	StepAnalyze  Step = "analyze"
	StepDocument Step = "document"
)

// Snapshot is what the Progress Publisher returns for a task.
type Snapshot struct {
	TaskID      int64
	Status      string
	Step        Step
	Percent     float64
	CurrentFile string
	ErrorMsg    string
}

// DocProgress is the last observed remote document-generation progress
// (0-100), supplied by the Document stage driver; it feeds the final
// 75-100% band of the percent formula.
type DocProgress int

// Derive computes a Snapshot from a Task per the deterministic rules
// of spec §4.6. It never touches the store itself.
func Derive(task *model.Task, docProgress DocProgress) Snapshot {
	snap := Snapshot{
		TaskID:      task.ID,
		Status:      task.Status,
		CurrentFile: task.CurrentFile,
		ErrorMsg:    task.ErrorMessage,
	}

	switch task.Status {
	case model.TaskStatusPending:
		snap.Step = StepQueued
		snap.Percent = 0
		return snap
	case model.TaskStatusCompleted:
		snap.Step = StepDocument
		snap.Percent = 100
		return snap
	case model.TaskStatusFailed:
		snap.Step, snap.Percent = frozenFailurePoint(task, docProgress)
		return snap
	}

	// status == running
	switch {
	case task.TotalFiles > 0 && task.SuccessfulFiles+task.FailedFiles < task.TotalFiles && task.VectorIndexName == "":
		snap.Step = StepScan
		snap.Percent = ratio(task.SuccessfulFiles, task.TotalFiles) * 25
	case task.VectorIndexName == "":
		snap.Step = StepIndex
		snap.Percent = 25
	case task.AnalysisTotalFiles > 0 && task.AnalysisSuccess < task.AnalysisTotalFiles:
		snap.Step = StepAnalyze
		snap.Percent = 25 + ratio(task.AnalysisSuccess, task.AnalysisTotalFiles)*50
	default:
		snap.Step = StepDocument
		snap.Percent = 75 + float64(docProgress)*0.25
	}
	return snap
}

// frozenFailurePoint reconstructs the last-known step/percent for a
// failed task without advancing it, per §4.6/§7's freeze-on-failure rule.
func frozenFailurePoint(task *model.Task, docProgress DocProgress) (Step, float64) {
	switch model.PipelineStage(task.CurrentStep) {
	case model.StageScan:
		return StepScan, ratio(task.SuccessfulFiles, task.TotalFiles) * 25
	case model.StageIndex:
		return StepIndex, 25
	case model.StageAnalyze:
		return StepAnalyze, 25 + ratio(task.AnalysisSuccess, task.AnalysisTotalFiles)*50
	default:
		return StepDocument, 75 + float64(docProgress)*0.25
	}
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
