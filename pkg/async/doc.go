// Package async provides the scheduling and synchronization primitives used
// by connections: a named recurring-task scheduler built on LoopTimer, a FIFO
// context-aware Lock, and small executor helpers for timeouts, delays,
// dedicated long-running loops and polling.
package async
