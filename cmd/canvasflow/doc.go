// Command canvasflow runs the CanvasFlow workflow engine server: the
// management API, the websocket event stream, and the Prometheus metrics
// endpoint.
package main
