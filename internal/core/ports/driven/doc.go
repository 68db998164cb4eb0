// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EquationSolver: Fits candidate equations to a feature matrix
//   - SolverFactory: Creates solvers from run configuration
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - FieldProvider: Samples the field and its derivatives. Only needed when
//     the caller does not already hold Samples.
//   - SampleStore: Dataset persistence. Only needed by RunDataset.
//   - ResultStore: Run persistence. Without it, results stay in memory.
//   - ConfigStore: Run configuration persistence.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or solver package
package driven
