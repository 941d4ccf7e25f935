package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage represents a correction status transition
type WSStatusMessage struct {
	Type          string           `json:"type"`
	CorrectionID  string           `json:"correctionId"`
	Status        CorrectionStatus `json:"status"`
	TotalJobs     int              `json:"totalJobs,omitempty"`
	CompletedJobs int              `json:"completedJobs,omitempty"`
}

// WSCompleteMessage represents correction completion
type WSCompleteMessage struct {
	Type         string `json:"type"`
	CorrectionID string `json:"correctionId"`
	ResultURL    string `json:"resultUrl"`
}

// WSErrorMessage represents a terminal failure
type WSErrorMessage struct {
	Type         string  `json:"type"`
	CorrectionID string  `json:"correctionId"`
	Error        WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
