package progress

import (
	"context"

	"github.com/qs3c/repoanalyzer/internal/pkg/pubsub"
	"github.com/qs3c/repoanalyzer/internal/store"
)

// Publisher derives a Snapshot from the Task Store and pushes it over
// the teacher's Redis pubsub channel so WS-connected clients get an
// immediate update instead of waiting for their next poll.
type Publisher struct {
	store *store.Store
	pub   *pubsub.Publisher
}

func NewPublisher(st *store.Store, pub *pubsub.Publisher) *Publisher {
	return &Publisher{store: st, pub: pub}
}

// Read derives and returns the current snapshot for taskID without
// publishing (used by polling reads of task detail, §6).
func (p *Publisher) Read(taskID int64) (Snapshot, error) {
	task, err := p.store.ReadTask(taskID)
	if err != nil {
		return Snapshot{}, err
	}
	return Derive(task, 0), nil
}

// Push derives the current snapshot and publishes it. docProgress is
// the last remote document-generation percentage known to the driver;
// it only affects the Document-stage portion of the formula.
func (p *Publisher) Push(ctx context.Context, taskID int64, docProgress DocProgress) error {
	task, err := p.store.ReadTask(taskID)
	if err != nil {
		return err
	}
	snap := Derive(task, docProgress)

	if p.pub == nil {
		return nil
	}
	return p.pub.PublishProgress(ctx, &pubsub.ProgressMessage{
		TaskID:      taskID,
		Status:      snap.Status,
		Step:        string(snap.Step),
		Percent:     snap.Percent,
		CurrentFile: snap.CurrentFile,
		Error:       snap.ErrorMsg,
	})
}
