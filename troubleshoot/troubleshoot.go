// Package troubleshoot runs read-only checks that explain why a client VPN
// connection to a network's security appliance fails.
package troubleshoot

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/vpn"
)

// State is the outcome of one check.
type State int

const (
	StateUnknown State = iota
	StatePass
	StateFail
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StatePass:
		return "Pass"
	case StateFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Check identifies a diagnostic.
type Check int

const (
	CheckApplianceOnline Check = iota
	CheckGatewayReachable
	CheckNotBehindFirewall
	CheckClientVPNEnabled
	CheckMerakiAuth
	CheckNoIPSecForwards
)

// Checks lists every diagnostic in the order Run executes them.
var Checks = []Check{
	CheckApplianceOnline,
	CheckGatewayReachable,
	CheckNotBehindFirewall,
	CheckClientVPNEnabled,
	CheckMerakiAuth,
	CheckNoIPSecForwards,
}

// String returns the question the check answers.
func (c Check) String() string {
	switch c {
	case CheckApplianceOnline:
		return "Is the appliance online?"
	case CheckGatewayReachable:
		return "Can this client ping the appliance's public address?"
	case CheckNotBehindFirewall:
		return "Is this client outside the appliance?"
	case CheckClientVPNEnabled:
		return "Is client VPN enabled?"
	case CheckMerakiAuth:
		return "Is the authentication type Meraki cloud?"
	case CheckNoIPSecForwards:
		return "Are UDP 500 and 4500 free of port forwards?"
	default:
		return "Unknown check"
	}
}

// IPSEC ports that must reach the appliance itself.
var ipsecPorts = []int{500, 4500}

// Result is the outcome of a single check.
type Result struct {
	Check  Check
	State  State
	Detail string
}

// Report holds the results of every check.
type Report []Result

// Passed reports whether every check passed.
func (r Report) Passed() bool {
	for _, res := range r {
		if res.State != StatePass {
			return false
		}
	}
	return len(r) > 0
}

// Failed returns the results that did not pass.
func (r Report) Failed() Report {
	var failed Report
	for _, res := range r {
		if res.State != StatePass {
			failed = append(failed, res)
		}
	}
	return failed
}

// Source reads the dashboard pages the checks inspect, normally a
// *dashboard.Session with a network selected.
type Source interface {
	ClientVPN(ctx context.Context) (dashboard.ClientVPNSettings, error)
	ApplianceStatus(ctx context.Context) (dashboard.ApplianceStatus, error)
}

// Pinger checks reachability of a host.
type Pinger interface {
	Ping(ctx context.Context, host string) (time.Duration, error)
}

// ErrUnreachable is returned by a Pinger when the host does not answer.
var ErrUnreachable = errors.New("host did not answer")

// CommandPinger pings with the system ping tool.
type CommandPinger struct {
	Runner vpn.Runner
	GOOS   string
}

// NewCommandPinger returns a pinger for the running OS.
func NewCommandPinger() CommandPinger {
	return CommandPinger{Runner: vpn.ExecRunner{}, GOOS: runtime.GOOS}
}

func (p CommandPinger) args(host string) []string {
	if p.GOOS == "windows" {
		return []string{"-n", "4", host}
	}
	return []string{"-c", "5", "-i", "0.2", host}
}

// Ping sends a few echo requests and reports the elapsed time.
func (p CommandPinger) Ping(ctx context.Context, host string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, common.PingTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.Runner.Run(ctx, "ping", p.args(host)...)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("%w: ping exit status %d", ErrUnreachable, res.ExitCode)
	}
	return time.Since(start), nil
}

// Run executes every check against the active network. Checks whose page
// could not be read are reported as unknown; the read errors are returned
// joined alongside the report.
func Run(ctx context.Context, src Source, pinger Pinger) (Report, error) {
	status, statusErr := src.ApplianceStatus(ctx)
	settings, vpnErr := src.ClientVPN(ctx)

	report := make(Report, 0, len(Checks))
	add := func(c Check, fn func() Result, deps ...error) {
		if err := errors.Join(deps...); err != nil {
			report = append(report, Result{Check: c, State: StateUnknown, Detail: err.Error()})
			return
		}
		res := fn()
		res.Check = c
		common.LogDebug("Troubleshoot: %s %s %s", c, res.State, res.Detail)
		report = append(report, res)
	}

	add(CheckApplianceOnline, func() Result { return applianceOnline(status) }, statusErr)
	add(CheckGatewayReachable, func() Result { return gatewayReachable(ctx, pinger, settings) }, vpnErr)
	add(CheckNotBehindFirewall, func() Result { return notBehindFirewall(status, settings) }, statusErr, vpnErr)
	add(CheckClientVPNEnabled, func() Result { return clientVPNEnabled(settings) }, vpnErr)
	add(CheckMerakiAuth, func() Result { return merakiAuth(settings) }, vpnErr)
	add(CheckNoIPSecForwards, func() Result { return noIPSecForwards(settings) }, vpnErr)

	return report, errors.Join(statusErr, vpnErr)
}

func pass(detail string) Result { return Result{State: StatePass, Detail: detail} }
func fail(detail string) Result { return Result{State: StateFail, Detail: detail} }

func applianceOnline(s dashboard.ApplianceStatus) Result {
	switch {
	case !s.Known:
		return fail("no security appliance in this network")
	case s.Online():
		return pass("online")
	default:
		return fail(fmt.Sprintf("status code %d", s.StatusCode))
	}
}

func gatewayReachable(ctx context.Context, pinger Pinger, c dashboard.ClientVPNSettings) Result {
	addr := c.Address()
	if addr == "" {
		return fail("no public address or hostname known")
	}
	latency, err := pinger.Ping(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			return fail(fmt.Sprintf("%s: %v", addr, err))
		}
		return Result{State: StateUnknown, Detail: fmt.Sprintf("could not ping %s: %v", addr, err)}
	}
	return pass(fmt.Sprintf("%s answered in %s", addr, latency.Round(time.Millisecond)))
}

func notBehindFirewall(s dashboard.ApplianceStatus, c dashboard.ClientVPNSettings) Result {
	if s.RequestIP == "" || c.PublicIP == "" {
		return Result{State: StateUnknown, Detail: "public addresses not reported"}
	}
	if s.RequestIP == c.PublicIP {
		return fail(fmt.Sprintf("this client reaches the dashboard from %s, the appliance's own address", s.RequestIP))
	}
	return pass(fmt.Sprintf("client %s, appliance %s", s.RequestIP, c.PublicIP))
}

func clientVPNEnabled(c dashboard.ClientVPNSettings) Result {
	if !c.Enabled {
		return fail("enable client VPN under Security appliance > Client VPN")
	}
	return pass("enabled")
}

func merakiAuth(c dashboard.ClientVPNSettings) Result {
	if !c.MerakiAuth() {
		if c.AuthType == "" {
			return fail("authentication type not reported; select Meraki cloud")
		}
		return fail(fmt.Sprintf("authentication type is %s; select Meraki cloud", c.AuthType))
	}
	return pass("Meraki cloud")
}

func noIPSecForwards(c dashboard.ClientVPNSettings) Result {
	var forwarded []int
	for _, p := range ipsecPorts {
		if c.Forwards(p) {
			forwarded = append(forwarded, p)
		}
	}
	if len(forwarded) > 0 {
		return fail(fmt.Sprintf("port forwarding rules use UDP %v", forwarded))
	}
	return pass("no conflicting forwards")
}
