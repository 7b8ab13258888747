// Package storage defines the external stores the ruleset engine talks to.
//
// The engine treats actors and items as documents addressed by ID and only
// reads or writes the dotted field paths it names ("system.fortune.value").
// Chat messages are the durable record of every roll and of the resolution
// state of its effects.
//
// # Error Types
//
//   - ErrNotFound: a requested document or message is missing.
package storage
