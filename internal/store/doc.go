// Package store keeps the latest poll result per resource for the HTTP API.
//
// The main components are:
//
//   - [Store]: storage and subscription operations
//   - [MemoryStore]: in-memory Store with pub/sub
//   - [Record]: JSON form of a poller result
//
// The serve command subscribes to every poller in the registry and feeds
// each result into the store via [FromResult]. The HTTP server reads
// snapshots with [Store.GetAll] and streams updates to SSE clients with
// [Store.Subscribe].
package store
