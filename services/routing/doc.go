// Package routing implements the provider fallback cascade for crew runs.
//
// This package provides:
//   - Attempt planning over provider/model/base-url combinations
//   - Redaction of overrides before they reach a log line
//   - Sequential execution of the plan until one attempt succeeds
//   - Normalization of executor results into plain text
//
// Attempts never overlap. The first success ends the run; when every attempt
// fails the error of the last one is returned.
package routing
