// Package store persists terminal job outcomes. The store is a durable side
// channel: the worker pool's in-memory state stays authoritative and a failed
// write never changes a job's status.
package store
