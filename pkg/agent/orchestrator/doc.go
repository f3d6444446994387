// Package orchestrator runs the per-task control loop.
//
// For each task the orchestrator pre-screens the description, then repeats
// up to MaxSteps times:
//
//  1. ask the planner for the next action
//  2. stop with a reasoning-only audit entry if the planner terminates
//  3. screen the tool request; a blocked request becomes the last step
//  4. resolve the tool in the registry; an unregistered tool becomes a
//     blocked step with violation "unknown_tool"
//  5. validate input, run the tool, validate output and measure latency
//  6. append the step and stop if the output reports "complete": true
//
// The loop then summarizes the steps, finalizes the audit record and
// returns the response. A loop that exhausts MaxSteps without a block or a
// termination signal ends with status "step_limit".
//
// Rejections and tool failures close the audit record with status
// "rejected" or "error" before the error is returned, so every task that
// reached the orchestrator leaves exactly one audit record.
//
// # Usage
//
//	orch, err := orchestrator.New(registry, engine, rec, &orchestrator.Config{MaxSteps: 6},
//	    orchestrator.WithPolicyStore(policies),
//	    orchestrator.WithMetrics(collector),
//	    orchestrator.WithTracer(tracer),
//	)
//	resp, err := orch.RunTask(ctx, agent.NewTask("Lookup user-1 account status", "analyst", nil))
package orchestrator
