// Package queue provides the unbounded FIFO of pending job ids shared by the
// worker pool. Consumers block in Dequeue until work arrives or the queue is
// closed and drained.
package queue
