// Package logging provides file-based logging with rotation for skillrunner.
// Logs are written as JSON to ~/.skillrunner/logs/server.log.
//
// With the --debug flag, logging runs at debug level and is also copied to
// stderr. Without it, the index, search and execute commands log at info
// level to the file only, and the foreground daemon also copies to stderr.
// MCP serve mode always logs at debug level to the file only.
package logging
