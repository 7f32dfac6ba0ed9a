package vpn

import (
	"context"
	"fmt"
	"runtime"

	"github.com/yllada/merlink/common"
)

// Agent establishes and tears down tunnels with the OS's own tooling.
type Agent interface {
	// Connect creates the connection if needed and dials it. It returns the
	// exit status of the dialing tool; only zero means success.
	Connect(ctx context.Context, p Params) (int, error)
	// IsConnected reports whether any L2TP/IPSEC tunnel is up.
	IsConnected(ctx context.Context) (bool, error)
	// Disconnect hangs up every tunnel this agent can see.
	Disconnect(ctx context.Context) error
}

// NewAgent returns the agent for goos.
func NewAgent(goos string, opts Options, runner Runner) (Agent, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch goos {
	case "linux":
		return newLinuxAgent(runner, opts, newNMBus()), nil
	case "darwin":
		return &darwinAgent{runner: runner, opts: opts}, nil
	case "windows":
		return &windowsAgent{runner: runner, opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedPlatform, goos)
	}
}

// requiredTools lists the commands each agent shells out to.
var requiredTools = map[string][]string{
	"linux":   {"nmcli", "pkexec"},
	"darwin":  {"osascript", "scutil"},
	"windows": {"powershell", "rasdial"},
}

// DefaultAgent returns the agent for the running OS after checking that
// its tools are installed.
func DefaultAgent(opts Options) (Agent, error) {
	for _, tool := range requiredTools[runtime.GOOS] {
		if !checkCommandExists(tool) {
			return nil, fmt.Errorf("%w: %s not found in PATH", common.ErrUnsupportedPlatform, tool)
		}
	}
	return NewAgent(runtime.GOOS, opts, ExecRunner{})
}
