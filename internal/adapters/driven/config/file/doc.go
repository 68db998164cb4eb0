// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML run configuration under ~/.fieldlaw, merged over the
//     built-in defaults so a partial file only overrides what it names
package file
