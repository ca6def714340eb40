// Package pool provides a bounded goroutine pool for controlled concurrency.
package pool
