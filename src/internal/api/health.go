package api

import (
	"fmt"
	"net/http"
)

// CheckHealth performs health checks on the service.
// GET /api/v1/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	// Check that the running config matches the file on disk
	if h.configHasher != nil {
		outdated, err := h.configHasher.IsOutdated()
		switch {
		case err != nil:
			response.Healthy = false
			response.Checks["config"] = CheckResult{
				Passed:  false,
				Message: "Failed to load configuration: " + err.Error(),
			}
		case outdated:
			response.Checks["config"] = CheckResult{
				Passed:  false,
				Message: "Configuration file changed since it was applied, send SIGHUP to reload",
			}
		default:
			response.Checks["config"] = CheckResult{
				Passed:  true,
				Message: "Running configuration is up to date",
			}
		}
	}

	// Check that every desired rule is in the kernel
	summary := summarize(h.rules.Rules())
	missing := summary.Total - summary.Removing - summary.Installed
	if missing > 0 {
		response.Healthy = false
		response.Checks["rules"] = CheckResult{
			Passed:  false,
			Message: fmt.Sprintf("%d of %d rules are not installed", missing, summary.Total-summary.Removing),
		}
	} else {
		response.Checks["rules"] = CheckResult{
			Passed:  true,
			Message: fmt.Sprintf("All %d rules are installed", summary.Installed),
		}
	}

	writeJSONData(w, response)
}
