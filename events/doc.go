// Package events fans run events out to connected clients. The hub decouples
// the coordinator from transports: publishing never blocks, slow subscribers
// drop events instead of stalling the engine.
package events
