package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/config"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/vpn"
)

const (
	loginURL     = "https://account.meraki.com/login/dashboard_login"
	logoutURL    = "https://account.meraki.com/login/logout"
	landingURL   = "https://n1.meraki.com/Branch/n/N_102/manage/usage/list"
	org2URL      = "https://n2.meraki.com/o/o2BBBB/manage/organization/"
	clientVPNURL = "https://n1.meraki.com/Branch/n/N_102/manage/configure/client_vpn_settings"
	statusURL    = "https://n1.meraki.com/Branch/n/N_102/manage/nodes/new_wired_status"
)

const orgsBlob = `{"1":{"id":1,"name":"Acme","eid":"o1AAAA","shard_id":1,"node_groups":{` +
	`"N_101":{"id":101,"n":"HQ - appliance","eid":"N_101","network_type":"wired"},` +
	`"N_102":{"id":102,"n":"Branch","eid":"N_102","network_type":"switch"}}},` +
	`"2":{"id":2,"name":"Acme West","eid":"o2BBBB","shard_id":2}}`

const org2Blob = `{"1":{"id":1,"name":"Acme","eid":"o1AAAA","shard_id":1},` +
	`"2":{"id":2,"name":"Acme West","eid":"o2BBBB","shard_id":2,"node_groups":{` +
	`"N_201":{"id":201,"n":"West Office","eid":"N_201","network_type":"wireless"},` +
	`"N_202":{"id":202,"n":"West Cameras","eid":"N_202","network_type":"camera"}}}}`

const clientVPNBody = `Mkiconf.client_vpn = {"wired_ip":"203.0.113.10","dynamic_dns_name":"branch-abcd.dynamic-m.com",` +
	`"client_vpn_enabled":true,"client_vpn_secret":"s3cr$t","client_vpn_auth_type":"meraki"};`

func orgPage(url, blob string) *dashboard.Page {
	return &dashboard.Page{URL: url, Body: "<script>\nMkiconf.administered_orgs = " + blob + ";\n</script>"}
}

// fakeSource serves pages by URL and answers submissions from a queue.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[string]*dashboard.Page
	submits []*dashboard.Page
	opened  []string
}

func newFakeSource() *fakeSource {
	f := &fakeSource{pages: map[string]*dashboard.Page{}}
	f.pages[org2URL] = orgPage(org2URL, org2Blob)
	f.pages[clientVPNURL] = &dashboard.Page{URL: clientVPNURL, Body: clientVPNBody}
	f.pages[statusURL] = &dashboard.Page{URL: statusURL, Body: `{"status#":0,"request_ip":"198.51.100.7"}`}
	f.pages[logoutURL] = &dashboard.Page{URL: loginURL}
	return f
}

// landsDirectly queues a login that lands on org 1's Branch network.
func (f *fakeSource) landsDirectly() *fakeSource {
	f.submits = append(f.submits, orgPage(landingURL, orgsBlob))
	return f
}

func (f *fakeSource) Open(_ context.Context, url string) (*dashboard.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	if p, ok := f.pages[url]; ok {
		cp := *p
		return &cp, nil
	}
	return &dashboard.Page{URL: url}, nil
}

func (f *fakeSource) Submit(context.Context, dashboard.Form) (*dashboard.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submits) == 0 {
		return nil, errors.New("no form on page")
	}
	p := f.submits[0]
	f.submits = f.submits[1:]
	return p, nil
}

func (f *fakeSource) didOpen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.opened {
		if u == url {
			return true
		}
	}
	return false
}

type fakeAgent struct {
	mu     sync.Mutex
	up     bool
	code   int
	dialed []vpn.Params
}

func (a *fakeAgent) Connect(_ context.Context, p vpn.Params) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dialed = append(a.dialed, p)
	if a.code == 0 {
		a.up = true
	}
	return a.code, nil
}

func (a *fakeAgent) IsConnected(context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.up, nil
}

func (a *fakeAgent) Disconnect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.up {
		return common.ErrNotConnected
	}
	a.up = false
	return nil
}

type memStore struct {
	entries map[string]string
}

func (m *memStore) Store(account, password string) error {
	m.entries[account] = password
	return nil
}

func (m *memStore) Get(account string) (string, error) {
	p, ok := m.entries[account]
	if !ok {
		return "", common.ErrCredentialsNotFound
	}
	return p, nil
}

func (m *memStore) Delete(account string) error {
	delete(m.entries, account)
	return nil
}

// scriptedPrompter answers prompts in order.
type scriptedPrompter struct {
	answers []string
	asked   []string
}

func (p *scriptedPrompter) next(label string) (string, error) {
	p.asked = append(p.asked, label)
	if len(p.answers) == 0 {
		return "", errors.New("unexpected prompt " + label)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func (p *scriptedPrompter) Line(label string) (string, error)   { return p.next(label) }
func (p *scriptedPrompter) Secret(label string) (string, error) { return p.next(label) }

type okPinger struct{}

func (okPinger) Ping(context.Context, string) (time.Duration, error) { return time.Millisecond, nil }

type quietRunner struct{}

func (quietRunner) Run(context.Context, string, ...string) (vpn.Result, error) {
	return vpn.Result{}, nil
}

type harness struct {
	app      *App
	source   *fakeSource
	agent    *fakeAgent
	store    *memStore
	prompter *scriptedPrompter
	cfg      *config.Config
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:   newFakeSource(),
		agent:    &fakeAgent{},
		store:    &memStore{entries: map[string]string{}},
		prompter: &scriptedPrompter{},
		cfg:      config.DefaultConfig(),
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
	h.cfg.Username = "admin@example.com"
	h.cfg.ShowNotifications = false

	h.app = &App{
		Version: "1.2.3",
		Stdin:   &bytes.Buffer{},
		Stdout:  h.stdout,
		Stderr:  h.stderr,
		LoadConfig: func(string) (*config.Config, error) {
			return h.cfg, nil
		},
		NewSource: func(*config.Config) (dashboard.PageSource, error) {
			return h.source, nil
		},
		NewAgent: func(vpn.Options) (vpn.Agent, error) {
			return h.agent, nil
		},
		Credentials: h.store,
		Prompter:    h.prompter,
		Pinger:      okPinger{},
		Runner:      quietRunner{},
		Interactive: func() bool { return false },
		Pick: func(string, []string) (string, error) {
			return "", errors.New("picker not expected")
		},
	}
	return h
}

func (h *harness) run(args ...string) int {
	return h.app.Execute(context.Background(), args)
}
