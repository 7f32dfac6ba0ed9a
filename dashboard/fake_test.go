package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yllada/merlink/common"
)

const (
	accountLoginURL = "https://account.meraki.com/login/dashboard_login"
	org1URL         = "https://n1.meraki.com/o/o1AAAA/manage/organization/"
	org2URL         = "https://n2.meraki.com/o/o2BBBB/manage/organization/"
	landingURL      = "https://n1.meraki.com/Branch/n/N_102/manage/usage/list"
)

var errUnreachable = errors.New("dial tcp: connection refused")

type response struct {
	page *Page
	err  error
}

// fakeSource serves canned pages keyed by URL and answers form submissions
// from a queue.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[string]response
	submits []response
	opened  []string
	forms   []Form
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[string]response{
		accountLoginURL: {page: &Page{URL: accountLoginURL}},
	}}
}

func (f *fakeSource) serve(url string, p *Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.URL == "" {
		p.URL = url
	}
	f.pages[url] = response{page: p}
}

func (f *fakeSource) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = response{err: err}
}

func (f *fakeSource) queueSubmit(p *Page, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, response{page: p, err: err})
}

func (f *fakeSource) Open(_ context.Context, url string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	r, ok := f.pages[url]
	if !ok {
		return &Page{URL: url}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	p := *r.page
	return &p, nil
}

func (f *fakeSource) Submit(_ context.Context, form Form) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forms = append(f.forms, form)
	if len(f.submits) == 0 {
		return nil, errors.New("no form on page")
	}
	r := f.submits[0]
	f.submits = f.submits[1:]
	if r.err != nil {
		return nil, r.err
	}
	p := *r.page
	return &p, nil
}

func (f *fakeSource) openCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.opened {
		if u == url {
			n++
		}
	}
	return n
}

func (f *fakeSource) lastOpened() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		return ""
	}
	return f.opened[len(f.opened)-1]
}

// orgsPage renders an org-scoped page embedding the administered orgs blob.
func orgsPage(t *testing.T, url string, orgs ...rawOrg) *Page {
	t.Helper()
	blob := make(map[string]rawOrg, len(orgs))
	for _, o := range orgs {
		blob[jsonKey(o.ID)] = o
	}
	data, err := json.Marshal(blob)
	require.NoError(t, err)
	return &Page{
		URL:  url,
		Body: "<html><script>\nMkiconf.administered_orgs = " + string(data) + ";\n</script></html>",
	}
}

func jsonKey(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func acme(networks map[string]rawNetwork) rawOrg {
	return rawOrg{ID: 1, Name: "Acme", EID: "o1AAAA", ShardID: 1, NodeGroups: networks}
}

func acmeWest(networks map[string]rawNetwork) rawOrg {
	return rawOrg{ID: 2, Name: "Acme West", EID: "o2BBBB", ShardID: 2, NodeGroups: networks}
}

func acmeNetworks() map[string]rawNetwork {
	return map[string]rawNetwork{
		"N_101": {ID: 101, Name: "HQ - appliance", EID: "N_101", Type: "wired"},
		"N_102": {ID: 102, Name: "Branch", EID: "N_102", Type: "switch"},
		"N_103": {ID: 103, Name: "Store Template", EID: "N_103", Type: "wired", IsTemplate: true},
	}
}

func westNetworks() map[string]rawNetwork {
	return map[string]rawNetwork{
		"N_202": {ID: 202, Name: "West Cameras", EID: "N_202", Type: "camera"},
		"N_201": {ID: 201, Name: "West Office", EID: "N_201", Type: "wireless"},
	}
}

// newTestSession wires a session to a fake that serves org 2's page.
func newTestSession(t *testing.T) (*Session, *fakeSource) {
	t.Helper()
	src := newFakeSource()
	src.serve(org2URL, orgsPage(t, org2URL, acme(nil), acmeWest(westNetworks())))
	s := NewSession(src, WithLogger(common.NewLogger(io.Discard, common.LevelDebug)))
	return s, src
}

// loggedIn returns a session that landed directly on org 1's network 102.
func loggedIn(t *testing.T) (*Session, *fakeSource) {
	t.Helper()
	s, src := newTestSession(t)
	src.queueSubmit(orgsPage(t, landingURL, acme(acmeNetworks()), acmeWest(nil)), nil)

	outcome, err := s.Authenticate(context.Background(), "admin@example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, OutcomeAuthenticated, outcome)
	return s, src
}

// snapshot captures everything an operation must leave untouched on error.
type snapshot struct {
	activeOrg  int64
	activeNet  int64
	orgs       []Organization
	authorized bool
}

func takeSnapshot(s *Session) snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		activeOrg:  s.activeOrgID,
		activeNet:  s.activeNetworkID,
		orgs:       s.catalog.list(),
		authorized: s.state == stateAuthenticated,
	}
}
