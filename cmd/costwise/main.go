// Costwise is a cost accounting and budget enforcement service for
// AI API usage.
//
// It tracks per-request spend across request owner, project, and
// organization scopes, enforces budget limits before requests are
// dispatched, and raises threshold alerts as spend approaches a limit:
//   - Three-tier price resolution with hot-reloaded pricing feeds
//   - Atomic, idempotent spend recording in SQLite
//   - Synchronous pre-flight budget checks with bounded latency
//   - Ordered, at-least-once event delivery to alerting and analytics
//
// Usage:
//
//	# Start the service with default configuration
//	costwise run
//
//	# Start with a custom configuration file
//	costwise run --config /path/to/config.yaml
//
//	# Validate configuration without starting
//	costwise validate
//
//	# Show version information
//	costwise version
package main

func main() {
	Execute()
}
