// Package health reports the health of the component tree.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
)

// Pre-compiled regexes for error message sanitization
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	wsURLRegex       = regexp.MustCompile(`wss?://[^\s]+`)
	brokerURLRegex   = regexp.MustCompile(`(?:tcp|ssl|mqtt|redis|postgres(?:ql)?)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status is the health of a component or a group of them.
type Status struct {
	Component   string    `json:"component"`
	Type        string    `json:"type,omitempty"`
	Tenant      string    `json:"tenant,omitempty"`
	Lifecycle   string    `json:"lifecycle,omitempty"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // healthy, degraded, unhealthy
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// sanitizeErrorMessage removes addresses, paths and credentials from error
// messages before they are exposed over HTTP.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err

	// URLs before paths, since URLs contain paths
	sanitized = httpURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = wsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = brokerURLRegex.ReplaceAllString(sanitized, "[URL]")

	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lowerSanitized := strings.ToLower(sanitized)
	if strings.Contains(lowerSanitized, "password") || strings.Contains(lowerSanitized, "token") ||
		strings.Contains(lowerSanitized, "key") || strings.Contains(lowerSanitized, "secret") ||
		strings.Contains(lowerSanitized, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}

// own maps a lifecycle status to a health state, ignoring children.
func own(s component.Status) string {
	switch s {
	case component.StatusStarted:
		return StateHealthy
	case component.StatusStopped, component.StatusError:
		return StateUnhealthy
	default:
		return StateDegraded
	}
}

// FromComponent builds the status tree of c and every supervised descendant,
// including those below hierarchy roots.
//
// A component that is not running is unhealthy. A running component whose
// descendants are not all healthy is degraded: an optional child that failed
// does not take its parent down.
func FromComponent(c component.Component) Status {
	lifecycle := c.Status()
	st := Status{
		Component: c.Name(),
		Type:      string(c.Type()),
		Tenant:    component.TenantID(c),
		Lifecycle: lifecycle.String(),
		Status:    own(lifecycle),
		Message:   "Component " + lifecycle.String(),
		Timestamp: time.Now(),
	}
	if err := c.LastError(); err != nil {
		st.Message = sanitizeErrorMessage(err.Error())
	}

	for _, child := range c.Children() {
		sub := FromComponent(child)
		st.SubStatuses = append(st.SubStatuses, sub)
		if st.Status == StateHealthy && !sub.IsHealthy() {
			st.Status = StateDegraded
			st.Message = "One or more sub-components are not healthy"
		}
	}
	st.Healthy = st.IsHealthy()
	return st
}
