package websocket

const EventError = "error"

type ErrorData struct {
	Message string `json:"message"`
}

// OutgoingError is sent only to the client whose frame failed.
type OutgoingError struct {
	Type string    `json:"type"`
	Data ErrorData `json:"data"`
}
