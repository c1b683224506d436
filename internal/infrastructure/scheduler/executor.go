package scheduler

import (
	"context"
	"fmt"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// Env is everything the dispatcher hands an executor for one run: the job,
// its account with fresh tokens, the bound channel adapter, and a progress
// sink that commits immediately.
type Env struct {
	Job     *job.Job
	Account *channel.Account
	Adapter channel.Adapter

	// Progress reports processed/total item counts. Executors call it at
	// least every ten processed items.
	Progress func(processed, total int)
}

// Executor runs one job type to completion and returns the result map
// stored on the job.
type Executor interface {
	Type() job.Type
	Execute(ctx context.Context, env *Env) (map[string]any, error)
}

// ExecutorSet is the type → executor registry the dispatcher consults.
type ExecutorSet map[job.Type]Executor

// NewExecutorSet registers the given executors, failing on duplicates.
func NewExecutorSet(executors ...Executor) (ExecutorSet, error) {
	set := make(ExecutorSet, len(executors))
	for _, e := range executors {
		if _, dup := set[e.Type()]; dup {
			return nil, fmt.Errorf("duplicate executor for type %s", e.Type())
		}
		set[e.Type()] = e
	}
	return set, nil
}
