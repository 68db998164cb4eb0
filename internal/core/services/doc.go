// Package services implements the driving port interfaces.
// Services contain the discovery pipeline steps and orchestrate
// calls to driven ports (solvers, providers, stores).
//
// Every step is deterministic for a fixed configuration and seed.
package services
