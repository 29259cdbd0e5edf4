package intake

import (
	"errors"
	"fmt"
	"strings"
)

// RequiredFields are checked for presence before a run starts.
var RequiredFields = []string{"customerId", "productId", "quantity", "price"}

// MissingFields rejects a request at the boundary. No run is started.
type MissingFields struct {
	Fields []string
}

func (e *MissingFields) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// ErrRunNotFound is returned when a run handle is unknown to the runner.
var ErrRunNotFound = errors.New("run not found")
