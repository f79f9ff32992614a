package http

// APIResponse is the envelope of every JSON answer. Data holds the payload,
// []ValidationError for a 400, or []*AppError for other failures.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"signal_name"`
	Message string                 `json:"message,omitempty" example:"SignalName is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse carries rows such as signal samples or sessions.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
