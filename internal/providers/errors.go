package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
)

// Non-JSON error bodies come back from the SDK as plain errors carrying the
// status only in the message.
var statusInMessage = regexp.MustCompile(`status code: (\d{3})`)

// Kind classifies a failed generation call.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindTimeout        Kind = "timeout"
	KindNetwork        Kind = "network"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrAuthentication = errors.New("provider authentication failed")
	ErrRateLimit      = errors.New("provider rate limit or quota exceeded")
	ErrTimeout        = errors.New("provider request timed out")
	ErrNetwork        = errors.New("provider request failed")
)

// Causes narrow a Kind. errors.Is matches them alongside the kind sentinel.
var (
	ErrContextLength = errors.New("prompt exceeds the model context window")
	ErrCanceled      = errors.New("provider request canceled")
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	StatusCode int
	// Cause is ErrContextLength, ErrCanceled or nil.
	Cause error
	Err   error
}

func (e *Error) Error() string {
	base := e.sentinel().Error()
	if e.Cause != nil {
		base = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		base = fmt.Sprintf("%s (status %d)", base, e.StatusCode)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.sentinel() || (e.Cause != nil && target == e.Cause)
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindAuthentication:
		return ErrAuthentication
	case KindRateLimit:
		return ErrRateLimit
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrNetwork
	}
}

// Classify maps a transport or API error to a provider *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	// A caller that gives up is not a slow provider.
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Cause: ErrCanceled, Err: err}
	}
	// Timeout checks first: a net.Error can also be a connection error.
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	if status := statusCode(err); status > 0 {
		classified := &Error{Kind: kindForStatus(status, err), StatusCode: status, Err: err}
		if isContextLength(err) {
			classified.Cause = ErrContextLength
		}
		return classified
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	if match := statusInMessage.FindStringSubmatch(err.Error()); match != nil {
		status, _ := strconv.Atoi(match[1])
		return status
	}
	return 0
}

func kindForStatus(status int, err error) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthentication
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return KindRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		switch code {
		case "invalid_api_key":
			return KindAuthentication
		case "insufficient_quota", "rate_limit_exceeded":
			return KindRateLimit
		}
	}
	return KindNetwork
}

// isContextLength reports a request rejected for exceeding the model's
// context window.
func isContextLength(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, _ := apiErr.Code.(string); code == "context_length_exceeded" {
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "context_length") || strings.Contains(message, "maximum context length")
}
