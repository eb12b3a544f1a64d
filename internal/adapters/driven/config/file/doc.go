// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable oracle prompt templates
//   - Watcher: fsnotify reload of both on change
//   - LoadTreeDefinition: YAML tree definitions for tree creation
package file
