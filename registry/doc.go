// Package registry holds the gateway's in-memory state: sandboxes,
// code contexts, templates, per-sandbox files, and bearer tokens. Every
// record carries an owner so that a disconnecting identity's resources
// can be purged in one call. All state is ephemeral and scoped to the
// service instance that created the registry; nothing survives a
// restart.
package registry
