// Package handlers implements the HTTP handlers of the CanvasFlow management
// API: workflow execution, run inspection, cancellation, canvas management,
// and health probes.
package handlers
