package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotFound is returned when the requested content item does not exist.
var ErrNotFound = errors.New("content item not found")

// ErrorResponse is the error body returned by the Delivery API.
type ErrorResponse struct {
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
	ErrorCode    int    `json:"error_code"`
	SpecificCode int    `json:"specific_code"`
}

// DeliveryError is a non-2xx response from the Delivery API.
type DeliveryError struct {
	Status    int
	Code      int
	Message   string
	RequestID string
}

func (e *DeliveryError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("delivery api: HTTP %d: %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("delivery api: HTTP %d: %s", e.Status, e.Message)
}

// Is makes a 404 DeliveryError match ErrNotFound.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// decodeError converts an error response into a *DeliveryError.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Message == "" {
		msg := http.StatusText(resp.StatusCode)
		if len(body) > 0 && err != nil {
			msg = string(body)
		}
		return &DeliveryError{Status: resp.StatusCode, Message: msg}
	}

	return &DeliveryError{
		Status:    resp.StatusCode,
		Code:      er.ErrorCode,
		Message:   er.Message,
		RequestID: er.RequestID,
	}
}
