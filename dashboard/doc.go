// Package dashboard implements the authenticated browsing session against
// the Meraki dashboard.
//
// A Session owns three things:
//
//   - the login state machine (Authenticate, SubmitSecondFactor, Logout)
//   - the catalog of administered organizations, whose network inventories
//     are fetched lazily, at most once per organization
//   - the active organization/network pointers and the name/id resolution
//     used to move them
//
// Pages are obtained through a PageSource; the package never speaks HTTP
// itself. All state transitions of a Session are serialized, and any failing
// operation leaves the session exactly as it was before the call.
//
// # Typical flow
//
//	s := dashboard.NewSession(browser.New(...))
//	outcome, err := s.Authenticate(ctx, user, pass)
//	if outcome == dashboard.OutcomeSecondFactorRequired {
//	    ok, err := s.SubmitSecondFactor(ctx, code)
//	}
//	if _, err := s.SelectOrganizationByName(ctx, "acme"); err != nil { ... }
//	network, err := s.SelectNetworkByName(ctx, "hq", dashboard.NetworkWired)
//	settings, err := s.ClientVPN(ctx)
package dashboard
