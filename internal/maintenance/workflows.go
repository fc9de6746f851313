package maintenance

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/nucleus/tileindex/internal/embedder"
)

const (
	// TTLSweepWorkflowName is a name for TTLSweepWorkflowFunc. The
	// maintenance worker registers the workflow under its Go function
	// name, not under this constant.
	TTLSweepWorkflowName = "ttlSweepWorkflow"
	// OptimizeWorkflowName is a name for OptimizeWorkflowFunc. The
	// maintenance worker registers the workflow under its Go function
	// name, not under this constant.
	OptimizeWorkflowName = "optimizeWorkflow"
)

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 5 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	},
}

// TTLSweepInput parameterizes one sweep run: how far back indexed_at must
// be to count as expired, how many tiles to sweep per batch, and the
// sleep interval before the workflow continues as new for the next run.
type TTLSweepInput struct {
	TTLSeconds     int64
	BatchSize      int
	SweepInterval  time.Duration
	NowEpoch       int64
}

// TTLSweepResult reports what one sweep iteration did, for callers that
// want a synchronous answer (tests, a one-shot admin trigger) rather than
// the self-rescheduling loop.
type TTLSweepResult struct {
	TilesSwept int
}

// TTLSweepWorkflowFunc sweeps tiles whose indexed_at has aged past the
// TTL out of both the vector store and the registry, then sleeps and
// continues as new so the workflow's event history never grows
// unbounded (§9: this workflow's durability is what survives scheduler
// restarts, not an in-process ticker).
func TTLSweepWorkflowFunc(ctx workflow.Context, input TTLSweepInput) (TTLSweepResult, error) {
	logger := workflow.GetLogger(ctx)
	actCtx := workflow.WithActivityOptions(ctx, activityOptions)

	// a is never dereferenced: ExecuteActivity only needs the method
	// value's name to resolve the activity registered by the worker
	// process (see cmd/maintenance-worker), not a live receiver.
	var a *Activities
	cutoff := input.NowEpoch - input.TTLSeconds

	var expired []ExpiredTile
	if err := workflow.ExecuteActivity(actCtx, a.ListExpiredTiles, ListExpiredInput{
		CutoffEpoch: cutoff, Limit: input.BatchSize,
	}).Get(ctx, &expired); err != nil {
		return TTLSweepResult{}, err
	}

	// Group by the same physical table name the embedder worker wrote
	// to (§6), not the raw embedder_model string, which may carry a
	// "backend:model" composite the table name doesn't use verbatim.
	byModel := make(map[string][]string)
	for _, t := range expired {
		backend, model := embedder.SplitBackendModel(t.EmbedderModel)
		byModel[embedder.TableName(backend, model)] = append(byModel[embedder.TableName(backend, model)], t.TileID)
	}

	for model, tileIDs := range byModel {
		var delRes DeleteVectorRowsResult
		err := workflow.ExecuteActivity(actCtx, a.DeleteVectorRows, DeleteVectorRowsInput{
			TableName: model, TileIDs: tileIDs,
		}).Get(ctx, &delRes)
		if err != nil {
			logger.Error("sweep: delete vector rows failed, skipping registry delete for this group", "table", model, "error", err)
			continue
		}
		wantDeleted := int64(len(tileIDs))
		gotDeleted := delRes.RowsBefore - delRes.RowsAfter
		if gotDeleted != wantDeleted {
			logger.Warn("sweep: vector row count mismatch", "table", model, "want", wantDeleted, "got", gotDeleted)
		}

		var n int64
		if err := workflow.ExecuteActivity(actCtx, a.DeleteRegistryRows, DeleteRegistryRowsInput{TileIDs: tileIDs}).Get(ctx, &n); err != nil {
			logger.Error("sweep: delete registry rows failed", "error", err)
			continue
		}
		if n != wantDeleted {
			logger.Warn("sweep: registry row count mismatch", "want", wantDeleted, "got", n)
		}
	}

	if input.SweepInterval <= 0 {
		return TTLSweepResult{TilesSwept: len(expired)}, nil
	}
	if err := workflow.Sleep(ctx, input.SweepInterval); err != nil {
		return TTLSweepResult{TilesSwept: len(expired)}, err
	}
	nextInput := input
	nextInput.NowEpoch = input.NowEpoch + int64(input.SweepInterval.Seconds())
	return TTLSweepResult{}, workflow.NewContinueAsNewError(ctx, TTLSweepWorkflowFunc, nextInput)
}

// OptimizeInput parameterizes one optimize run.
type OptimizeInput struct {
	Interval time.Duration
}

// OptimizeWorkflowFunc runs optimize(name) across every known vector
// table, then sleeps and continues as new on the same cadence as the TTL
// sweep but independently of it, since compaction cost scales with table
// size rather than sweep volume.
func OptimizeWorkflowFunc(ctx workflow.Context, input OptimizeInput) error {
	logger := workflow.GetLogger(ctx)
	actCtx := workflow.WithActivityOptions(ctx, activityOptions)

	// See TTLSweepWorkflowFunc: a exists only so ExecuteActivity can
	// resolve the registered activity's name.
	var a *Activities
	var tables []string
	if err := workflow.ExecuteActivity(actCtx, a.ListTables).Get(ctx, &tables); err != nil {
		return err
	}
	for _, name := range tables {
		if err := workflow.ExecuteActivity(actCtx, a.OptimizeTable, name).Get(ctx, nil); err != nil {
			logger.Error("optimize: table failed", "table", name, "error", err)
		}
	}

	if input.Interval <= 0 {
		return nil
	}
	if err := workflow.Sleep(ctx, input.Interval); err != nil {
		return err
	}
	return workflow.NewContinueAsNewError(ctx, OptimizeWorkflowFunc, input)
}
