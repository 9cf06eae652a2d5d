package billing

import (
	"fmt"
)

// FetchError is returned when the billing API could not be read: either the
// request never got an answer (StatusCode 0, Err set) or it answered with
// something other than 200.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Status     string
	// Body holds the start of the response body, which usually carries the API's reason.
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("billing api %s: %v", e.Endpoint, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("billing api %s: %s: %v", e.Endpoint, e.Status, e.Err)
	case e.Body != "":
		return fmt.Sprintf("billing api %s: %s: %s", e.Endpoint, e.Status, e.Body)
	default:
		return fmt.Sprintf("billing api %s: %s", e.Endpoint, e.Status)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
