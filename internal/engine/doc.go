// Package engine provides the asynchronous job execution engine.
// A Pool owns a FIFO queue and a fixed set of worker goroutines; workers
// claim jobs, run the analysis through a Computer, record the terminal
// outcome in memory and write it to the result store.
package engine
