// Package spawner orchestrates subordinate tasks spawned by a supervising
// context against an external executor.
//
// The engine enforces admission quotas (spawn depth and active children),
// retries failed dispatches with configurable backoff, orders tasks after
// the tasks they depend on, fans batches out under a wait strategy and
// collects task outputs into named variables merged by a chosen strategy:
//
//	srv, _ := spawner.New(spawner.WithHandler(handler))
//	_ = srv.Start(ctx)
//	caller := task.Caller{Key: "agent:main:main"}
//	srv.Spawn(ctx, &task.SpawnRequest{Caller: caller, Task: "summarise",
//		Aggregation: &task.AggregationSpec{CollectInto: "$notes"}})
//	value, _ := srv.WaitAggregated(ctx, caller.Key, "$notes")
//
// Completions reported by an external executor are fed back through
// Service.HandleCompletion.
package spawner
