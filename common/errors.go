package common

import "errors"

// Sentinel errors for dashboard and VPN operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Transport errors.
	ErrConnection = errors.New("cannot reach the dashboard")
	ErrTimeout    = errors.New("operation timed out")
	ErrCancelled  = errors.New("operation cancelled")

	// Authentication errors.
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrSecondFactorRejected    = errors.New("invalid verification code")
	ErrNotAuthenticated        = errors.New("session is not authenticated")
	ErrNotAwaitingSecondFactor = errors.New("no second factor challenge pending")

	// Catalog and navigation errors.
	ErrCatalog             = errors.New("dashboard page does not match the expected shape")
	ErrUnknownOrganization = errors.New("organization not found")
	ErrUnknownNetwork      = errors.New("network not found")
	ErrNoActiveNetwork     = errors.New("no network selected")

	// VPN errors.
	ErrClientVPNDisabled   = errors.New("client VPN is not enabled for this network")
	ErrAlreadyConnected    = errors.New("already connected")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrNotConnected        = errors.New("no active connection")
	ErrUnsupportedPlatform = errors.New("platform not supported")

	// Credential errors.
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrCredentialStorage   = errors.New("failed to store credentials")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// JoinSentinel attaches a sentinel to an underlying cause so that both match
// errors.Is while the message keeps the cause's detail.
func JoinSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &sentinelError{sentinel: sentinel, cause: cause}
}

type sentinelError struct {
	sentinel error
	cause    error
}

func (e *sentinelError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *sentinelError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}
