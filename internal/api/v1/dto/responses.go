package dto

// MessageResponseDTO is the body of webhook and job acknowledgements.
type MessageResponseDTO struct {
	Message string `json:"message"`
}

// ErrorResponseDTO is returned by endpoints that answer errors as JSON.
type ErrorResponseDTO struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JobResponseDTO reports the result of a scheduled job run.
type JobResponseDTO struct {
	Success bool   `json:"success"`
	Updated *int64 `json:"updated,omitempty"`
	Sent    *int   `json:"sent,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
