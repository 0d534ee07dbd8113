package models

// HealthCheckResponse returns the health check response duh
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}

// PagedRidesResponse is the envelope returned by the ride search endpoint
type PagedRidesResponse struct {
	Count       int64            `json:"count"`
	TotalPages  int64            `json:"totalPages"`
	CurrentPage int64            `json:"currentPage"`
	Data        []RideWithDriver `json:"data"`
}
