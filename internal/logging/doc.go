// Package logging provides structured JSON logging with rotation for
// MnemoLite. Records go to ~/.mnemolite/logs/ and optionally stderr;
// stdout stays untouched because the MCP transport owns it.
//
// Observability events (index.file.*, index.repo.*, cache.*, graph.*,
// lock.*) are emitted through Event/EventDebug and carry the trace id
// of the request that caused them.
package logging
