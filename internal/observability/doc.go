// Package observability builds the structured logger shared by every
// component of the workshop crew gateway.
package observability
