// Package types contains shared types used across CanvasFlow packages:
// structured error codes and the unified Error type.
package types
