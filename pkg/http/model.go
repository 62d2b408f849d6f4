package http

// APIResponse is the envelope every handler returns: the HTTP status code
// mirrored in the body, its text, and the payload.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one failed request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"organization_id"`
	Message string                 `json:"message,omitempty" example:"organization_id is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
