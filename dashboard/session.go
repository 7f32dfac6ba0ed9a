package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/yllada/merlink/common"
)

// Endpoints locates the account host and the shard hosts.
type Endpoints struct {
	// AccountURL is the login host, e.g. https://account.meraki.com.
	AccountURL string
	// ShardURLFormat is formatted with a shard id, e.g. https://n%d.meraki.com.
	ShardURLFormat string
}

// DefaultEndpoints returns the production dashboard endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AccountURL:     common.DefaultAccountURL,
		ShardURLFormat: common.DefaultShardURLFormat,
	}
}

func (e Endpoints) account(path string) string {
	return strings.TrimRight(e.AccountURL, "/") + path
}

func (e Endpoints) shard(id int) string {
	return strings.TrimRight(fmt.Sprintf(e.ShardURLFormat, id), "/")
}

// resolve turns a chooser href into an absolute URL on the account host.
func (e Endpoints) resolve(href string) (string, error) {
	base, err := url.Parse(e.AccountURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (e Endpoints) organizationURL(o Organization) string {
	return e.shard(o.ShardID) + "/o/" + o.EID + "/manage/organization/"
}

func (e Endpoints) networkURL(o Organization, n Network, route string) string {
	return e.shard(o.ShardID) + "/" + slugify(n.Name) + "/n/" + n.EID + "/manage" + route
}

// authState is the position in the login handshake.
type authState int

const (
	stateIdle authState = iota
	stateAwaitingSecondFactor
	stateAuthenticated
)

// Session is a single authenticated browsing context. It is safe for use
// from multiple goroutines; every operation runs as one critical section.
type Session struct {
	mu        sync.Mutex
	source    PageSource
	endpoints Endpoints
	log       common.Logger

	state            authState
	catalog          *catalog
	activeOrgID      int64
	activeNetworkID  int64
	networkOnlyAdmin bool
}

// Option configures a Session.
type Option func(*Session)

// WithEndpoints overrides the dashboard hosts.
func WithEndpoints(e Endpoints) Option {
	return func(s *Session) { s.endpoints = e }
}

// WithLogger sets the logger used for session events.
func WithLogger(l common.Logger) Option {
	return func(s *Session) { s.log = l }
}

// NewSession creates an empty, unauthenticated session reading pages
// from source.
func NewSession(source PageSource, opts ...Option) *Session {
	s := &Session{
		source:    source,
		endpoints: DefaultEndpoints(),
		log:       common.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reset discards everything learned from the dashboard. Caller holds s.mu.
func (s *Session) reset() {
	s.state = stateIdle
	s.catalog = nil
	s.activeOrgID = 0
	s.activeNetworkID = 0
	s.networkOnlyAdmin = false
}

// Authenticated reports whether the catalog has been seeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthenticated
}

// NetworkOnlyAdmin reports whether the user administers networks without
// any organization-level membership.
func (s *Session) NetworkOnlyAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkOnlyAdmin
}

// Organizations returns every catalog entry in ascending id order.
func (s *Session) Organizations() []Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.list()
}

// Organization returns the catalog entry for id.
func (s *Session) Organization(id int64) (Organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.get(id)
}

// ActiveOrganization returns the active organization, if any.
func (s *Session) ActiveOrganization() (Organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.get(s.activeOrgID)
}

// ActiveNetwork returns the active network, if any.
func (s *Session) ActiveNetwork() (Network, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeNetwork()
}

func (s *Session) activeNetwork() (Network, bool) {
	if s.activeNetworkID == 0 {
		return Network{}, false
	}
	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return Network{}, false
	}
	return org.Network(s.activeNetworkID)
}

// seedResult is the complete post-login state, applied in one step.
type seedResult struct {
	catalog          *catalog
	activeOrgID      int64
	activeNetworkID  int64
	networkOnlyAdmin bool
}

// seed builds the catalog from the page the login redirect landed on.
// It does not touch session state; the caller applies the result.
func (s *Session) seed(ctx context.Context, landed *Page) (seedResult, error) {
	page := landed
	expected := 0

	switch l := classifyLanding(landed).(type) {
	case chooserLanding:
		if len(l.links) == 0 {
			return seedResult{}, fmt.Errorf("%w: organization chooser lists no organizations", common.ErrCatalog)
		}
		expected = len(l.links)
		target, err := s.endpoints.resolve(l.links[0])
		if err != nil {
			return seedResult{}, fmt.Errorf("%w: bad chooser link %q: %v", common.ErrCatalog, l.links[0], err)
		}
		s.log.Debug("Organization chooser lists %d organizations, following the first", expected)
		page, err = s.source.Open(ctx, target)
		if err != nil {
			return seedResult{}, common.JoinSentinel(common.ErrConnection, err)
		}
	case orgLanding:
		s.log.Debug("Login landed on an org-scoped page: %s", l.page.URL)
	}

	orgs, err := parseAdministeredOrgs(page.Body)
	if err != nil {
		return seedResult{}, err
	}
	if expected > 0 && len(orgs) != expected {
		return seedResult{}, fmt.Errorf("%w: chooser lists %d organizations but the page describes %d",
			common.ErrCatalog, expected, len(orgs))
	}

	c, err := newCatalog(orgs)
	if err != nil {
		return seedResult{}, err
	}

	fetched := c.fetched()
	if len(fetched) == 0 {
		return seedResult{}, fmt.Errorf("%w: landing page carries no network inventory", common.ErrCatalog)
	}
	active := fetched[0]

	result := seedResult{
		catalog:          c,
		activeOrgID:      active.ID,
		networkOnlyAdmin: isNetworkAdminOnly(page.Body),
	}

	eid := networkEIDFromURL(page.URL)
	for _, n := range active.Networks() {
		if eid != "" && n.EID == eid && n.selectable() {
			result.activeNetworkID = n.ID
			break
		}
	}
	if result.activeNetworkID == 0 {
		if n, ok := active.firstSelectable(); ok {
			result.activeNetworkID = n.ID
		}
	}

	s.log.Info("Catalog seeded: %d organizations, active organization %q", c.len(), active.Name)
	return result, nil
}

// apply installs a seed result and marks the session authenticated.
// Caller holds s.mu.
func (s *Session) apply(r seedResult) {
	s.state = stateAuthenticated
	s.catalog = r.catalog
	s.activeOrgID = r.activeOrgID
	s.activeNetworkID = r.activeNetworkID
	s.networkOnlyAdmin = r.networkOnlyAdmin
}

// fetchInventory loads the network inventory of org from its org-scoped
// page. It does not touch session state.
func (s *Session) fetchInventory(ctx context.Context, org Organization) (Organization, error) {
	target := s.endpoints.organizationURL(org)
	s.log.Debug("Fetching networks of organization %q from %s", org.Name, target)

	page, err := s.source.Open(ctx, target)
	if err != nil {
		return Organization{}, common.JoinSentinel(common.ErrConnection, err)
	}

	orgs, err := parseAdministeredOrgs(page.Body)
	if err != nil {
		return Organization{}, err
	}
	for _, o := range orgs {
		if o.ID != org.ID {
			continue
		}
		if o.state != Fetched {
			return Organization{}, fmt.Errorf("%w: page for organization %d carries no network inventory",
				common.ErrCatalog, org.ID)
		}
		return org.withInventory(o.networks), nil
	}
	return Organization{}, fmt.Errorf("%w: organization %d missing from its own page", common.ErrCatalog, org.ID)
}

func (s *Session) requireAuthenticated() error {
	if s.state != stateAuthenticated {
		return common.ErrNotAuthenticated
	}
	return nil
}
