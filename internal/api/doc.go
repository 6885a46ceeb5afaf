// Package api exposes task submission over HTTP. Each request runs inside
// its own transaction; commit-deferred submissions made by a request reach
// the queue only when that request's transaction commits.
package api
