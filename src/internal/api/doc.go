// Package api provides the read-only REST API of the pbrsync service.
//
// It exposes the rules the service manages, grouped the same ways the show
// command groups them:
//   - GET /api/v1/pbr: every rule with a summary
//   - GET /api/v1/pbr/maps[/{name}]: rules by pbr map
//   - GET /api/v1/pbr/interfaces[/{name}]: rules by bound interface
//   - GET /api/v1/health: config freshness and rule installation checks
//   - GET /metrics: Prometheus metrics
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "ERROR_CODE",
//	    "message": "Human-readable error message"
//	  }
//	}
package api
