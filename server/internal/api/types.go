package api

// PointResponse is one sample.
type PointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp float64 `json:"timestamp"`
	Time      string  `json:"time"` // RFC3339Nano
}

// DeviceResponse summarises one device in GET /api/v1/devices.
type DeviceResponse struct {
	DeviceID     string         `json:"device_id"`
	Battery      *int           `json:"battery"`
	LastSeen     string         `json:"last_seen"` // RFC3339
	PointCount   int            `json:"point_count"`
	Received     int            `json:"received"`
	Batches      int            `json:"batches"`
	LastPosition *PointResponse `json:"last_position"`
}

// DeviceDetailResponse is GET /api/v1/devices/{id}.
type DeviceDetailResponse struct {
	DeviceResponse
	// Points are the newest points, oldest first.
	Points []PointResponse `json:"points"`
}

// HealthResponse is GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Devices int    `json:"devices"`
}

type errorResponse struct {
	Error string `json:"error"`
}
