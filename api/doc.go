// Package api defines the HTTP request and response types of the CanvasFlow
// management API. The handlers live in api/handlers.
package api
