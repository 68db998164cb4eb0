// Package driving defines the interfaces embedding applications use to run
// discoveries. These are the "driving" ports in hexagonal architecture
// terminology - they drive the engine.
//
// Implementations of these interfaces live in internal/core/services.
package driving
