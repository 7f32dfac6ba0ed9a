package troubleshoot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/vpn"
)

type fakeSource struct {
	settings  dashboard.ClientVPNSettings
	status    dashboard.ApplianceStatus
	vpnErr    error
	statusErr error
}

func (f fakeSource) ClientVPN(context.Context) (dashboard.ClientVPNSettings, error) {
	return f.settings, f.vpnErr
}

func (f fakeSource) ApplianceStatus(context.Context) (dashboard.ApplianceStatus, error) {
	return f.status, f.statusErr
}

type fakePinger struct {
	err   error
	hosts []string
}

func (p *fakePinger) Ping(_ context.Context, host string) (time.Duration, error) {
	p.hosts = append(p.hosts, host)
	return 12 * time.Millisecond, p.err
}

func healthy() fakeSource {
	return fakeSource{
		settings: dashboard.ClientVPNSettings{
			Enabled:        true,
			Secret:         "psk",
			Hostname:       "acme-hq.dynamic-m.com",
			PublicIP:       "203.0.113.10",
			AuthType:       "meraki",
			ForwardedPorts: []int{443},
		},
		status: dashboard.ApplianceStatus{Known: true, StatusCode: 0, RequestIP: "198.51.100.7"},
	}
}

func states(r Report) map[Check]State {
	m := make(map[Check]State, len(r))
	for _, res := range r {
		m[res.Check] = res.State
	}
	return m
}

func TestRun_AllPass(t *testing.T) {
	pinger := &fakePinger{}
	report, err := Run(context.Background(), healthy(), pinger)
	require.NoError(t, err)
	require.Len(t, report, len(Checks))

	for i, res := range report {
		assert.Equal(t, Checks[i], res.Check)
		assert.Equal(t, StatePass, res.State, res.Check.String())
	}
	assert.True(t, report.Passed())
	assert.Empty(t, report.Failed())
	assert.Equal(t, []string{"acme-hq.dynamic-m.com"}, pinger.hosts)
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeSource)
		ping   error
		check  Check
		want   State
	}{
		{"appliance unreachable", func(s *fakeSource) { s.status.StatusCode = 2 }, nil, CheckApplianceOnline, StateFail},
		{"no appliance", func(s *fakeSource) { s.status.Known = false }, nil, CheckApplianceOnline, StateFail},
		{"ping fails", nil, ErrUnreachable, CheckGatewayReachable, StateFail},
		{"ping tool missing", nil, errors.New("exec: ping not found"), CheckGatewayReachable, StateUnknown},
		{"no address", func(s *fakeSource) { s.settings.Hostname, s.settings.PublicIP = "", "" }, nil, CheckGatewayReachable, StateFail},
		{"behind firewall", func(s *fakeSource) { s.status.RequestIP = "203.0.113.10" }, nil, CheckNotBehindFirewall, StateFail},
		{"request ip missing", func(s *fakeSource) { s.status.RequestIP = "" }, nil, CheckNotBehindFirewall, StateUnknown},
		{"client vpn disabled", func(s *fakeSource) { s.settings.Enabled = false }, nil, CheckClientVPNEnabled, StateFail},
		{"radius auth", func(s *fakeSource) { s.settings.AuthType = "radius" }, nil, CheckMerakiAuth, StateFail},
		{"forwarding 500", func(s *fakeSource) { s.settings.ForwardedPorts = []int{500} }, nil, CheckNoIPSecForwards, StateFail},
		{"forwarding 4500", func(s *fakeSource) { s.settings.ForwardedPorts = []int{80, 4500} }, nil, CheckNoIPSecForwards, StateFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := healthy()
			if tt.mutate != nil {
				tt.mutate(&src)
			}
			report, err := Run(context.Background(), src, &fakePinger{err: tt.ping})
			require.NoError(t, err)

			got := states(report)
			assert.Equal(t, tt.want, got[tt.check])
			for c, s := range got {
				if c != tt.check {
					assert.Equal(t, StatePass, s, c.String())
				}
			}
			assert.False(t, report.Passed())
			require.Len(t, report.Failed(), 1)
			assert.NotEmpty(t, report.Failed()[0].Detail)
		})
	}
}

func TestRun_PageErrors(t *testing.T) {
	src := healthy()
	src.statusErr = common.JoinSentinel(common.ErrConnection, errors.New("reset by peer"))
	pinger := &fakePinger{}

	report, err := Run(context.Background(), src, pinger)
	assert.ErrorIs(t, err, common.ErrConnection)

	got := states(report)
	assert.Equal(t, StateUnknown, got[CheckApplianceOnline])
	assert.Equal(t, StateUnknown, got[CheckNotBehindFirewall])
	assert.Equal(t, StatePass, got[CheckClientVPNEnabled])
	assert.Equal(t, StatePass, got[CheckGatewayReachable])

	src = healthy()
	src.vpnErr = common.ErrNoActiveNetwork
	pinger = &fakePinger{}
	report, err = Run(context.Background(), src, pinger)
	assert.ErrorIs(t, err, common.ErrNoActiveNetwork)
	assert.Empty(t, pinger.hosts)
	assert.Equal(t, StatePass, states(report)[CheckApplianceOnline])
	assert.Len(t, report.Failed(), 5)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Pass", StatePass.String())
	assert.Equal(t, "Fail", StateFail.String())
	assert.Equal(t, "Unknown", StateUnknown.String())
	assert.Equal(t, "Unknown check", Check(42).String())
}

type scriptedRunner struct {
	res  vpn.Result
	err  error
	args []string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (vpn.Result, error) {
	r.args = append([]string{name}, args...)
	return r.res, r.err
}

func TestCommandPinger(t *testing.T) {
	runner := &scriptedRunner{}
	p := CommandPinger{Runner: runner, GOOS: "linux"}
	_, err := p.Ping(context.Background(), "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, []string{"ping", "-c", "5", "-i", "0.2", "203.0.113.10"}, runner.args)

	p.GOOS = "windows"
	runner.res = vpn.Result{ExitCode: 1}
	_, err = p.Ping(context.Background(), "203.0.113.10")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, []string{"ping", "-n", "4", "203.0.113.10"}, runner.args)

	runner.err = errors.New("exec: \"ping\": executable file not found")
	_, err = p.Ping(context.Background(), "203.0.113.10")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreachable)
}
