package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation  = errors.New("push validation failed")
	ErrTransmit    = errors.New("push transmit failed")
	ErrGateway     = errors.New("push gateway returned an error")
	ErrPersistence = errors.New("push token state not saved")
	ErrInternal    = errors.New("push pipeline failed")

	ErrAlreadySent = errors.New("push already sent")
)

// DefaultFatalCodes are FCM v1 error codes meaning the token will never work again.
var DefaultFatalCodes = []string{"UNREGISTERED", "INVALID_ARGUMENT", "SENDER_ID_MISMATCH"}

// DeliveryError is the single error recorded by a push attempt.
type DeliveryError struct {
	Message           string
	ProviderErrorCode string
	StatusCode        int
	ServerResponse    json.RawMessage

	kind     error
	critical bool
	cause    error
}

func newDeliveryError(kind error, message string, cause error) *DeliveryError {
	return &DeliveryError{Message: message, kind: kind, cause: cause}
}

func (e *DeliveryError) Error() string {
	if e.ProviderErrorCode != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.ProviderErrorCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Is matches the kind sentinel the error was created with.
func (e *DeliveryError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

func (e *DeliveryError) Unwrap() error { return e.cause }

// Kind returns the sentinel describing where the attempt failed.
func (e *DeliveryError) Kind() error { return e.kind }

// IsCritical reports whether the recipient token is no longer usable.
func (e *DeliveryError) IsCritical() bool { return e.critical }

// MakeCritical forces the error critical regardless of its provider code.
func (e *DeliveryError) MakeCritical() *DeliveryError {
	e.critical = true
	return e
}

// MarshalJSON renders the error as stored in delivery logs.
func (e *DeliveryError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message        string          `json:"message"`
		ErrorCode      string          `json:"errorCode,omitempty"`
		Critical       bool            `json:"critical"`
		StatusCode     int             `json:"statusCode,omitempty"`
		ServerResponse json.RawMessage `json:"serverResponse,omitempty"`
	}{
		Message:        e.Error(),
		ErrorCode:      e.ProviderErrorCode,
		Critical:       e.critical,
		StatusCode:     e.StatusCode,
		ServerResponse: e.ServerResponse,
	})
}

// Classifier turns gateway error bodies into DeliveryErrors.
type Classifier struct {
	fatal map[string]struct{}
}

// NewClassifier uses DefaultFatalCodes when codes is empty.
func NewClassifier(codes ...string) *Classifier {
	if len(codes) == 0 {
		codes = DefaultFatalCodes
	}
	fatal := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code != "" {
			fatal[code] = struct{}{}
		}
	}
	return &Classifier{fatal: fatal}
}

// IsFatal reports whether code marks a token as permanently invalid.
func (c *Classifier) IsFatal(code string) bool {
	_, ok := c.fatal[code]
	return ok
}

type gatewayErrorBody struct {
	Error struct {
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// GatewayError builds the error for a non-200 response. The body is kept
// verbatim; a body that is not JSON is stored as a JSON string.
func (c *Classifier) GatewayError(status int, body []byte) *DeliveryError {
	derr := newDeliveryError(ErrGateway, "fcm returned an error", nil)
	derr.StatusCode = status

	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		derr.ServerResponse = quoted
		return derr
	}
	derr.ServerResponse = append(json.RawMessage(nil), body...)

	var parsed gatewayErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Error.Details) > 0 {
		derr.ProviderErrorCode = parsed.Error.Details[0].ErrorCode
	}
	if c.IsFatal(derr.ProviderErrorCode) {
		derr.MakeCritical()
	}
	return derr
}
