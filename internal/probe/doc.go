// Package probe provides readiness signals for compose services.
//
// Each probe answers one question: is this service ready right now? The
// lifecycle package decides how often to ask and for how long.
//
//   - ComposePS asks docker compose for container state and health.
//   - HTTP issues a GET against a configured URL.
//   - TCP dials a configured host:port.
//   - Router picks a per-service HTTP or TCP probe when one is configured
//     and falls back to a default probe otherwise.
//
// The Docker Engine API probe lives in the docker package.
package probe
