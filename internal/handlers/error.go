package handlers

// ErrorResponse is the JSON body for failed readiness probes.
type ErrorResponse struct {
	Message string `json:"message"`
}
