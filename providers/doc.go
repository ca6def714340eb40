// Package providers carries the built-in capability backends: a tool
// registry with safe local tools and a deterministic local agent provider.
// Both exist so the engine runs end-to-end without external services; real
// deployments swap them behind the workflow capability interfaces.
package providers
