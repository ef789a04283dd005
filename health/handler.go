package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Handler serves the monitor as JSON.
//
//	GET <prefix>          aggregate status of everything monitored
//	GET <prefix>/{name}   status tree of one monitored entry
//
// Unhealthy responses use 503 so load balancers can act on the code alone.
func Handler(m *Monitor, system, prefix string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.TrimSuffix(prefix, "/")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, logger, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		name := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
		var status Status
		if name == "" {
			status = m.AggregateHealth(system)
		} else {
			var ok bool
			if status, ok = m.Get(name); !ok {
				writeJSON(w, logger, http.StatusNotFound, map[string]string{"error": "unknown component"})
				return
			}
		}

		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, logger, code, status)
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode health response", "error", err)
	}
}
