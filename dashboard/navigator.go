package dashboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/yllada/merlink/common"
)

// generalRoute is the configure page every network type exposes.
const generalRoute = "/configure/general"

// OrganizationNames returns every organization name, sorted.
func (s *Session) OrganizationNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	orgs := s.catalog.list()
	names := make([]string, 0, len(orgs))
	for _, o := range orgs {
		names = append(names, o.Name)
	}
	sort.Strings(names)
	return names
}

// ActiveOrganizationName returns the name of the active organization, or
// an empty string when none is active.
func (s *Session) ActiveOrganizationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return ""
	}
	return org.Name
}

// NetworkNames returns the display names of the active organization's
// networks matching types, sorted. Templates are never listed. With no
// types every network type is listed.
func (s *Session) NetworkNames(types ...NetworkType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return nil
	}
	var names []string
	for _, n := range org.Networks() {
		if n.selectable() && n.matchesType(types) {
			names = append(names, n.DisplayName())
		}
	}
	sort.Strings(names)
	return names
}

// ActiveNetworkName returns the display name of the active network, or an
// empty string when none is active.
func (s *Session) ActiveNetworkName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.activeNetwork()
	if !ok {
		return ""
	}
	return n.DisplayName()
}

// SelectOrganizationByID makes id the active organization, fetching its
// network inventory on first selection. On error nothing changes.
func (s *Session) SelectOrganizationByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectOrganization(ctx, id)
}

func (s *Session) selectOrganization(ctx context.Context, id int64) error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}
	org, ok := s.catalog.get(id)
	if !ok {
		return fmt.Errorf("%w: id %d", common.ErrUnknownOrganization, id)
	}
	if id == s.activeOrgID {
		return nil
	}

	if org.state == NotFetched {
		fetched, err := s.fetchInventory(ctx, org)
		if err != nil {
			return err
		}
		if err := s.catalog.store(fetched); err != nil {
			return err
		}
		org = fetched
		s.log.Debug("Organization %q has %d networks", org.Name, len(org.networks))
	}

	s.activeOrgID = org.ID
	if _, ok := org.Network(s.activeNetworkID); !ok {
		s.activeNetworkID = 0
		if n, ok := org.firstSelectable(); ok {
			s.activeNetworkID = n.ID
		}
	}
	s.log.Info("Active organization: %s", org.Name)
	return nil
}

// SelectOrganizationByName selects the first organization, in ascending id
// order, whose name contains name case-insensitively.
func (s *Session) SelectOrganizationByName(ctx context.Context, name string) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthenticated(); err != nil {
		return Organization{}, err
	}
	for _, o := range s.catalog.list() {
		if common.ContainsFold(o.Name, name) {
			if err := s.selectOrganization(ctx, o.ID); err != nil {
				return Organization{}, err
			}
			selected, _ := s.catalog.get(o.ID)
			return selected, nil
		}
	}
	return Organization{}, fmt.Errorf("%w: no organization matches %q", common.ErrUnknownOrganization, name)
}

// SelectNetworkByID makes id the active network of the active organization
// and opens its general configuration page. On error nothing changes.
func (s *Session) SelectNetworkByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectNetwork(ctx, id)
}

func (s *Session) selectNetwork(ctx context.Context, id int64) error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}
	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return fmt.Errorf("%w: no active organization", common.ErrUnknownNetwork)
	}
	n, ok := org.Network(id)
	if !ok || !n.selectable() {
		return fmt.Errorf("%w: id %d in organization %q", common.ErrUnknownNetwork, id, org.Name)
	}

	if _, err := s.source.Open(ctx, s.endpoints.networkURL(org, n, generalRoute)); err != nil {
		return common.JoinSentinel(common.ErrConnection, err)
	}
	s.activeNetworkID = n.ID
	s.log.Info("Active network: %s", n.DisplayName())
	return nil
}

// SelectNetworkByName selects the first network of the active organization,
// in ascending id order, whose name contains name case-insensitively and
// whose type is one of types. With no types every network type matches.
func (s *Session) SelectNetworkByName(ctx context.Context, name string, types ...NetworkType) (Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthenticated(); err != nil {
		return Network{}, err
	}
	org, ok := s.catalog.get(s.activeOrgID)
	if !ok {
		return Network{}, fmt.Errorf("%w: no active organization", common.ErrUnknownNetwork)
	}
	for _, n := range org.Networks() {
		if !n.selectable() || !n.matchesType(types) {
			continue
		}
		if common.ContainsFold(n.Name, name) {
			if err := s.selectNetwork(ctx, n.ID); err != nil {
				return Network{}, err
			}
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: no network in %q matches %q", common.ErrUnknownNetwork, org.Name, name)
}
