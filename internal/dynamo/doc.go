// Package dynamo holds the vocabulary shared by every layer of the engine.
//
// It defines no behaviour of its own beyond small helpers:
//
//   - [State]: dense vector of transient state values
//   - [SolverConfig], [TransientConfig]: run options with their defaults
//   - [Metric], [Observer]: hooks fed with a [StepInfo] per accepted step
//   - error sentinels and the typed errors [AssemblyError],
//     [EvaluationError], [ConvergenceError] and [SimulationError]
//
// # Error Taxonomy
//
// Assembly errors are returned by system.Builder.Build and name the
// offending path. Evaluation errors abort the current run. Convergence
// failures are reported inside solver results; callers decide whether
// they become errors via the result's AsError method.
//
// # Thread Safety
//
// Nothing in the engine is safe for concurrent use. One assembly is driven
// by one goroutine at a time.
package dynamo
