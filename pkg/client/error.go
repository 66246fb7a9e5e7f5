package client

import (
	"fmt"
	"net/http"
)

// MaintenanceMessage is used when the API signals maintenance mode without a description.
const MaintenanceMessage = "The API is currently in maintenance mode.\n" +
	"Please try again later and check http://status.dotcloud.com for more information."

// RESTAPIError represents any non-success outcome of a request.
type RESTAPIError struct {
	Code        int
	Description string
	TraceID     string
}

func (e *RESTAPIError) Error() string {
	msg := fmt.Sprintf(`%s (code: %d)`, e.Description, e.Code)
	if len(e.TraceID) > 0 {
		msg += fmt.Sprintf(`, traceId: "%s"`, e.TraceID)
	}
	return msg
}

// StatusCode returns HTTP status code.
func (e *RESTAPIError) StatusCode() int {
	return e.Code
}

// ErrorUserMessage returns error message for end user.
func (e *RESTAPIError) ErrorUserMessage() string {
	return e.Description
}

// ErrorTraceID returns the trace ID to find details in the API logs.
func (e *RESTAPIError) ErrorTraceID() string {
	return e.TraceID
}

// IsMaintenance returns true if the API is in maintenance mode.
func (e *RESTAPIError) IsMaintenance() bool {
	return e.Code == http.StatusTeapot
}

// errorBody is the JSON error shape returned by the API.
type errorBody struct {
	Error struct {
		Description *string `json:"description"`
	} `json:"error"`
}

// errorDescription returns the "error.description" field, or false if it is missing or the body is invalid.
func errorDescription(body []byte) (string, bool) {
	var v errorBody
	if err := json.Unmarshal(body, &v); err != nil {
		return "", false
	}
	if v.Error.Description == nil {
		return "", false
	}
	return *v.Error.Description, true
}
