package main

// DesignDTO represents a design in API responses
type DesignDTO struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	ArtistURL string `json:"artist_url"`
	Added     string `json:"added"`
	DesignURL string `json:"design_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ListDesignsResponse is the response for GET /api/designs
type ListDesignsResponse struct {
	Designs []DesignDTO `json:"designs"`
	Count   int         `json:"count"`
}

// DeleteDesignResponse is the response for DELETE /api/designs/{id}
type DeleteDesignResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status             string `json:"status"`
	DatabasePath       string `json:"database_path"`
	DatabaseSize       string `json:"database_size,omitempty"`
	DesignCount        int64  `json:"design_count"`
	DescriptorSetCount int64  `json:"descriptor_set_count"`
	Preloaded          int    `json:"preloaded"`
	PendingMatches     int64  `json:"pending_matches"`
	UnhealthyThreshold int64  `json:"unhealthy_threshold"`
	Uptime             string `json:"uptime"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
