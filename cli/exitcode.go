package cli

import (
	"errors"
	"strings"

	"github.com/yllada/merlink/common"
)

// Process exit codes.
const (
	ExitOK                   = 0
	ExitError                = 1
	ExitUsage                = 2
	ExitInvalidCredentials   = 3
	ExitConnection           = 4
	ExitUnknownOrganization  = 5
	ExitUnknownNetwork       = 6
	ExitCatalog              = 7
	ExitSecondFactorRejected = 8
	ExitVPNConnectFailed     = 9
)

// usageError marks bad flags or arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// isCobraUsage recognizes the argument errors cobra builds itself.
func isCobraUsage(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.Contains(msg, "arg(s)")
}

// exitCodes is checked in order; the first sentinel err matches wins.
var exitCodes = []struct {
	err  error
	code int
}{
	{common.ErrInvalidCredentials, ExitInvalidCredentials},
	{common.ErrSecondFactorRejected, ExitSecondFactorRejected},
	{common.ErrUnknownOrganization, ExitUnknownOrganization},
	{common.ErrUnknownNetwork, ExitUnknownNetwork},
	{common.ErrCatalog, ExitCatalog},
	{common.ErrConnection, ExitConnection},
	{common.ErrClientVPNDisabled, ExitVPNConnectFailed},
	{common.ErrConnectionFailed, ExitVPNConnectFailed},
	{common.ErrAlreadyConnected, ExitVPNConnectFailed},
	{common.ErrTimeout, ExitVPNConnectFailed},
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var uerr usageError
	if errors.As(err, &uerr) || isCobraUsage(err) {
		return ExitUsage
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ExitError
}
