package vpn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/merlink/common"
)

// fakeRunner answers commands by the first matching prefix of
// "name arg1 arg2...".
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]Result
	errs      map[string]error
	calls     [][]string
	inputs    map[string][]byte
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: map[string]Result{},
		errs:      map[string]error{},
		inputs:    map[string][]byte{},
	}
}

func (f *fakeRunner) on(prefix string, r Result) *fakeRunner {
	f.responses[prefix] = r
	return f
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	line := strings.Join(call, " ")

	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	for prefix, err := range f.errs {
		if strings.HasPrefix(line, prefix) {
			return Result{}, err
		}
	}
	return f.responses[best], nil
}

func (f *fakeRunner) RunInput(ctx context.Context, input []byte, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.inputs[strings.Join(append([]string{name}, args...), " ")] = input
	f.mu.Unlock()
	return f.Run(ctx, name, args...)
}

// plainRunner hides RunInput from the agent.
type plainRunner struct{ runner *fakeRunner }

func (r plainRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return r.runner.Run(ctx, name, args...)
}

type fakeBus struct {
	active      []activeConnection
	err         error
	deactivated []dbus.ObjectPath
}

func (b *fakeBus) ActiveConnections(context.Context) ([]activeConnection, error) {
	return b.active, b.err
}

func (b *fakeBus) Deactivate(_ context.Context, path dbus.ObjectPath) error {
	b.deactivated = append(b.deactivated, path)
	return nil
}

var testParams = Params{
	Name:     "Acme - Branch",
	Address:  "branch.dynamic-m.com",
	PSK:      "p$k\"1",
	Username: "admin@example.com",
	Password: "pa$$ word",
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, testParams.Validate())

	err := Params{Name: "x", Address: " "}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address, psk, username, password")
}

func TestNewAgent(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		a, err := NewAgent(goos, Options{}, newFakeRunner())
		require.NoError(t, err, goos)
		assert.NotNil(t, a)
	}

	_, err := NewAgent("plan9", Options{}, newFakeRunner())
	assert.ErrorIs(t, err, common.ErrUnsupportedPlatform)

	_, err = NewAgent("linux", Options{SplitRoutes: []string{"not-a-route"}}, newFakeRunner())
	assert.Error(t, err)
}

func TestQuoting(t *testing.T) {
	tests := []struct {
		name  string
		quote func(string) string
		in    string
		want  string
	}{
		{"powershell dollar", quotePowerShell, "pa$$", "\"pa`$`$\""},
		{"powershell quote", quotePowerShell, `a"b`, "\"a`\"b\""},
		{"powershell backtick", quotePowerShell, "a`b", "\"a``b\""},
		{"shell dollar", quoteShell, "pa$$", `"pa\$\$"`},
		{"shell spaces", quoteShell, "Acme - Branch", `"Acme - Branch"`},
		{"shell backslash", quoteShell, `a\b"`, `"a\\b\""`},
		{"applescript", quoteAppleScript, `say "hi"`, `"say \"hi\""`},
		{"nm data comma", quoteNMData, "ab, user=evil", `ab\, user=evil`},
		{"nm data backslash", quoteNMData, `a\b`, `a\\b`},
		{"nm data plain", quoteNMData, "p$k\"1", "p$k\"1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.quote(tt.in))
		})
	}
}

func TestNormalizeNetworkRoute(t *testing.T) {
	tests := []struct {
		route    string
		expected string
	}{
		{"192.168.1.0/24", "192.168.1.0/24"},
		{"192.168.1.1/24", "192.168.1.0/24"},
		{"10.0.0.5", "10.0.0.5/32"},
		{" 8.8.8.8 ", "8.8.8.8/32"},
		{"", ""},
		{"invalid", ""},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeNetworkRoute(tt.route))
		})
	}
}

func TestLinuxAgent_Connect(t *testing.T) {
	runner := newFakeRunner()
	a := newLinuxAgent(runner, Options{
		DNSSuffix:   "corp.example.com",
		SplitTunnel: true,
		SplitRoutes: []string{"10.1.0.1/16", "192.168.5.7"},
	}, &fakeBus{})
	a.newID = func() string { return "11111111-2222-3333-4444-555555555555" }

	p := testParams
	p.Username = "bob, user=evil"
	code, err := a.Connect(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, code)

	require.Len(t, runner.calls, 3)
	assert.Equal(t, []string{"nmcli", "--terse", "--fields", "NAME,UUID,TYPE", "connection", "show"}, runner.calls[0])

	add := runner.calls[1]
	assert.Equal(t, []string{"pkexec", "nmcli", "connection", "add"}, add[:4])
	joined := strings.Join(add, "|")
	assert.Contains(t, joined, "con-name|Acme - Branch")
	assert.Contains(t, joined, "connection.uuid|11111111-2222-3333-4444-555555555555")
	assert.Contains(t, joined, `vpn.data|gateway=branch.dynamic-m.com, ipsec-enabled=yes, user=bob\, user=evil, password-flags=2, ipsec-psk-flags=2`)
	assert.Contains(t, joined, "ipv4.dns-search|corp.example.com")
	assert.Contains(t, joined, "ipv4.never-default|yes")
	assert.Contains(t, joined, "ipv4.routes|10.1.0.0/16,192.168.5.7/32")

	up := []string{"nmcli", "connection", "up", "uuid", "11111111-2222-3333-4444-555555555555", "passwd-file", "/dev/stdin"}
	assert.Equal(t, up, runner.calls[2])
	assert.Equal(t, "vpn.secrets.password:pa$$ word\nvpn.secrets.ipsec-psk:p$k\"1\n",
		string(runner.inputs[strings.Join(up, " ")]))

	for _, call := range runner.calls {
		for _, arg := range call {
			for _, secret := range p.Secrets() {
				assert.NotContains(t, arg, secret, "secret leaked into %v", call)
			}
		}
	}
}

func TestLinuxAgent_ConnectReusesProfile(t *testing.T) {
	runner := newFakeRunner().on("nmcli --terse --fields NAME,UUID,TYPE", Result{
		Output: []byte("Wired connection 1:aaaa:802-3-ethernet\nAcme - Branch:bbbb:vpn\n"),
	})
	a := newLinuxAgent(runner, Options{}, &fakeBus{})
	a.newID = func() string {
		t.Fatal("no new profile expected")
		return ""
	}

	_, err := a.Connect(context.Background(), testParams)
	require.NoError(t, err)

	require.Len(t, runner.calls, 3)
	modify := runner.calls[1]
	assert.Equal(t, []string{"pkexec", "nmcli", "connection", "modify", "uuid", "bbbb"}, modify[:6])
	joined := strings.Join(modify, "|")
	assert.Contains(t, joined, "ipv4.never-default|no")
	assert.Contains(t, joined, "ipv4.routes|")
	assert.Equal(t, []string{"nmcli", "connection", "up", "uuid", "bbbb", "passwd-file", "/dev/stdin"}, runner.calls[2])
}

func TestParseTerseProfile(t *testing.T) {
	tests := []struct {
		line          string
		name, id, typ string
		ok            bool
	}{
		{"Acme - Branch:bbbb:vpn", "Acme - Branch", "bbbb", "vpn", true},
		{`Site\:A:cccc:vpn`, "Site:A", "cccc", "vpn", true},
		{`back\\slash:dddd:vpn`, `back\slash`, "dddd", "vpn", true},
		{"vpn", "", "", "", false},
		{"", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, id, typ, ok := parseTerseProfile(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.typ, typ)
		})
	}
}

func TestLinuxAgent_ConnectFailure(t *testing.T) {
	runner := newFakeRunner().on("pkexec", Result{ExitCode: 126, Output: []byte("dismissed")})
	a := newLinuxAgent(runner, Options{}, &fakeBus{})

	code, err := a.Connect(context.Background(), testParams)
	require.NoError(t, err)
	assert.Equal(t, 126, code)
	assert.Len(t, runner.calls, 2)
}

func TestLinuxAgent_ConnectNeedsStdin(t *testing.T) {
	runner := newFakeRunner()
	a := newLinuxAgent(plainRunner{runner}, Options{}, &fakeBus{})

	_, err := a.Connect(context.Background(), testParams)
	require.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestLinuxAgent_IsConnected(t *testing.T) {
	bus := &fakeBus{active: []activeConnection{
		{Path: "/ac/1", ID: "eth0", VPN: false, State: nmStateActivated},
		{Path: "/ac/2", ID: "Acme", VPN: true, State: nmStateActivated},
	}}
	a := newLinuxAgent(newFakeRunner(), Options{}, bus)
	up, err := a.IsConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, up)

	bus.active = bus.active[:1]
	up, err = a.IsConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, up)
}

func TestLinuxAgent_IsConnectedFallsBackToNmcli(t *testing.T) {
	runner := newFakeRunner().on("nmcli --terse", Result{Output: []byte("802-3-ethernet\nvpn\n")})
	a := newLinuxAgent(runner, Options{}, &fakeBus{err: errors.New("no system bus")})

	up, err := a.IsConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, up)
}

func TestLinuxAgent_Disconnect(t *testing.T) {
	bus := &fakeBus{active: []activeConnection{
		{Path: "/ac/1", ID: "eth0", State: nmStateActivated},
		{Path: "/ac/2", ID: "Acme", VPN: true, State: nmStateActivated},
	}}
	a := newLinuxAgent(newFakeRunner(), Options{}, bus)
	require.NoError(t, a.Disconnect(context.Background()))
	assert.Equal(t, []dbus.ObjectPath{"/ac/2"}, bus.deactivated)

	bus.active = bus.active[:1]
	assert.ErrorIs(t, a.Disconnect(context.Background()), common.ErrNotConnected)
}

func TestLinuxAgent_DisconnectWithoutBus(t *testing.T) {
	runner := newFakeRunner()
	a := newLinuxAgent(runner, Options{}, &fakeBus{err: errors.New("no system bus")})
	assert.ErrorIs(t, a.Disconnect(context.Background()), common.ErrNotConnected)

	a.newID = func() string { return "abc" }
	_, err := a.Connect(context.Background(), testParams)
	require.NoError(t, err)
	require.NoError(t, a.Disconnect(context.Background()))
	assert.Equal(t, []string{"nmcli", "connection", "down", "uuid", "abc"}, runner.calls[len(runner.calls)-1])
}

const scutilList = `Available network connection services in the current set (*=enabled):
* (Disconnected)   1A2B3C4D-0000 PPP --> L2TP       "Acme - Branch"                  [PPP:L2TP]
* (Connected)      5E6F7A8B-0000 PPP --> L2TP       "Globex"                         [PPP:L2TP]
`

func TestDarwinAgent_Connect(t *testing.T) {
	runner := newFakeRunner().on("/usr/sbin/scutil --nc list", Result{Output: []byte(scutilList)})
	a := &darwinAgent{runner: runner}

	code, err := a.Connect(context.Background(), testParams)
	require.NoError(t, err)
	assert.Zero(t, code)
	require.Len(t, runner.calls, 3)

	script := runner.calls[1][2]
	assert.Equal(t, `do shell script "/usr/sbin/scutil --nc select \"Acme - Branch\"" with administrator privileges`, script)
	assert.Equal(t, []string{"/usr/sbin/scutil", "--nc", "start", "Acme - Branch",
		"--user", "admin@example.com", "--password", "pa$$ word", "--secret", "p$k\"1"}, runner.calls[2])
}

func TestDarwinAgent_UnknownService(t *testing.T) {
	runner := newFakeRunner().on("/usr/sbin/scutil --nc list", Result{Output: []byte(scutilList)})
	a := &darwinAgent{runner: runner}

	p := testParams
	p.Name = "Initech"
	_, err := a.Connect(context.Background(), p)
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestDarwinAgent_StatusAndDisconnect(t *testing.T) {
	runner := newFakeRunner().on("/usr/sbin/scutil --nc list", Result{Output: []byte(scutilList)})
	a := &darwinAgent{runner: runner}

	up, err := a.IsConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, up)

	require.NoError(t, a.Disconnect(context.Background()))
	assert.Equal(t, []string{"/usr/sbin/scutil", "--nc", "stop", "Globex"}, runner.calls[len(runner.calls)-1])
}

func TestWindowsAgent_AddScript(t *testing.T) {
	a := &windowsAgent{opts: Options{
		DNSSuffix:          "corp.example.com",
		IdleDisconnect:     30 * time.Minute,
		SplitTunnel:        true,
		SplitRoutes:        []string{"10.1.0.0/16"},
		RememberCredential: true,
	}}
	script := a.addScript(testParams)

	assert.Contains(t, script, "Get-VpnConnection -Name \"Acme - Branch\"")
	assert.Contains(t, script, "-ServerAddress \"branch.dynamic-m.com\"")
	assert.Contains(t, script, "-L2tpPsk \"p`$k`\"1\"")
	assert.Contains(t, script, "-RememberCredential:$true -UseWinlogonCredential:$false -SplitTunneling:$true")
	assert.Contains(t, script, "-DnsSuffix \"corp.example.com\"")
	assert.Contains(t, script, "-IdleDisconnectSeconds 1800")
	assert.Contains(t, script, "Add-VpnConnectionRoute -ConnectionName \"Acme - Branch\" -DestinationPrefix \"10.1.0.0/16\"")
	assert.NotContains(t, script, "pa$$ word")
}

func TestWindowsAgent_Connect(t *testing.T) {
	runner := newFakeRunner().on("rasdial Acme", Result{ExitCode: 691})
	a := &windowsAgent{runner: runner}

	code, err := a.Connect(context.Background(), testParams)
	require.NoError(t, err)
	assert.Equal(t, 691, code)
	assert.Equal(t, []string{"rasdial", "Acme - Branch", "admin@example.com", "pa$$ word"}, runner.calls[1])
}

func TestWindowsAgent_StatusAndDisconnect(t *testing.T) {
	runner := newFakeRunner().on("rasdial", Result{Output: []byte("Connected to\r\nAcme - Branch\r\nCommand completed successfully.\r\n")})
	a := &windowsAgent{runner: runner}

	up, err := a.IsConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, up)

	require.NoError(t, a.Disconnect(context.Background()))
	assert.Equal(t, []string{"rasdial", "Acme - Branch", "/disconnect"}, runner.calls[len(runner.calls)-1])

	idle := &windowsAgent{runner: newFakeRunner().on("rasdial", Result{Output: []byte("No connections\r\nCommand completed successfully.\r\n")})}
	up, err = idle.IsConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, up)
	assert.ErrorIs(t, idle.Disconnect(context.Background()), common.ErrNotConnected)
}
