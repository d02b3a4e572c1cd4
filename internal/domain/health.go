package domain

// ============================================================
// Health & generic API responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status    string          `json:"status"` // healthy, degraded, unhealthy
	Service   string          `json:"service"`
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp"`
	Services  []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of a backing dependency.
type ServiceHealth struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}
