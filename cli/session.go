package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
)

// maxCodeAttempts bounds how many verification codes are asked for.
const maxCodeAttempts = 3

const logoutTimeout = 5 * time.Second

// credentials are the dashboard login the session was opened with.
type credentials struct {
	username string
	password string
	// prompted is true when the password was typed rather than stored.
	prompted bool
	stored   bool
}

func (a *App) loadCredentials() (credentials, error) {
	var c credentials
	c.username = a.cfg.Username
	if c.username == "" {
		u, err := a.Prompter.Line("Dashboard email")
		if err != nil {
			return c, err
		}
		c.username = u
	}
	if c.username == "" {
		return c, usageError{errors.New("a dashboard username is required")}
	}

	c.password = a.cfg.Password
	if c.password == "" {
		if p, err := a.Credentials.Get(c.username); err == nil {
			c.password = p
			c.stored = true
		} else if !errors.Is(err, common.ErrCredentialsNotFound) {
			common.LogWarn("Could not read saved password: %v", err)
		}
	}
	if c.password == "" {
		p, err := a.Prompter.Secret("Dashboard password")
		if err != nil {
			return c, err
		}
		c.password = p
		c.prompted = true
	}
	common.Redact(c.password)
	return c, nil
}

// login opens an authenticated dashboard session, prompting for a
// verification code when the account requires one.
func (a *App) login(ctx context.Context) (*dashboard.Session, credentials, error) {
	creds, err := a.loadCredentials()
	if err != nil {
		return nil, creds, err
	}

	source, err := a.NewSource(a.cfg)
	if err != nil {
		return nil, creds, err
	}
	session := dashboard.NewSession(source,
		dashboard.WithEndpoints(a.cfg.DashboardEndpoints()),
		dashboard.WithLogger(common.GetLogger()),
	)

	var outcome dashboard.AuthOutcome
	err = a.spin("Logging in to the dashboard...", func() error {
		var err error
		outcome, err = session.Authenticate(ctx, creds.username, creds.password)
		return err
	})
	if err != nil {
		return nil, creds, err
	}

	switch outcome {
	case dashboard.OutcomeInvalidCredentials:
		if creds.stored {
			_ = a.Credentials.Delete(creds.username)
		}
		return nil, creds, fmt.Errorf("%w for %s", common.ErrInvalidCredentials, creds.username)
	case dashboard.OutcomeSecondFactorRequired:
		if err := a.secondFactor(ctx, session); err != nil {
			return nil, creds, err
		}
	}

	if creds.prompted && a.cfg.SavePassword {
		if err := a.Credentials.Store(creds.username, creds.password); err != nil {
			common.LogWarn("Could not save password: %v", err)
		}
	}
	return session, creds, nil
}

func (a *App) secondFactor(ctx context.Context, session *dashboard.Session) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := a.Prompter.Secret("Verification code")
		if err != nil {
			return err
		}
		common.Redact(code)
		accepted, err := session.SubmitSecondFactor(ctx, code)
		if err != nil {
			return err
		}
		if accepted {
			return nil
		}
		color.New(color.FgYellow).Fprintln(a.Stderr, "Invalid verification code.")
	}
	return common.ErrSecondFactorRejected
}

// logout ends the session even when ctx was cancelled by a signal.
func (a *App) logout(ctx context.Context, session *dashboard.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	if _, err := session.Logout(ctx); err != nil {
		common.LogDebug("Logout failed: %v", err)
	}
}

// selectOrganization applies the configured organization selector, or
// offers a picker when none is set and several organizations exist.
func (a *App) selectOrganization(ctx context.Context, session *dashboard.Session) error {
	selector := a.cfg.Organization
	if selector == "" {
		names := session.OrganizationNames()
		if len(names) < 2 || !a.Interactive() {
			return nil
		}
		choice, err := a.Pick("Organization", names)
		if err != nil {
			return err
		}
		for _, o := range session.Organizations() {
			if o.Name == choice {
				return session.SelectOrganizationByID(ctx, o.ID)
			}
		}
		return fmt.Errorf("%w: %q", common.ErrUnknownOrganization, choice)
	}

	if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
		err := session.SelectOrganizationByID(ctx, id)
		if !errors.Is(err, common.ErrUnknownOrganization) {
			return err
		}
	}
	_, err := session.SelectOrganizationByName(ctx, selector)
	return err
}

// selectNetwork applies the configured network selector within the active
// organization, or offers a picker when none is set.
func (a *App) selectNetwork(ctx context.Context, session *dashboard.Session) error {
	types, _ := a.cfg.ParsedNetworkTypes()
	selector := a.cfg.Network
	if selector == "" {
		names := session.NetworkNames(types...)
		if len(names) == 0 {
			org, _ := session.ActiveOrganization()
			return fmt.Errorf("%w: organization %q has no matching networks", common.ErrUnknownNetwork, org.Name)
		}
		if n, ok := session.ActiveNetwork(); ok && !a.Interactive() {
			if len(types) == 0 || containsType(types, n.Type) {
				return nil
			}
		}
		if len(names) == 1 {
			_, err := session.SelectNetworkByName(ctx, names[0], types...)
			return err
		}
		if !a.Interactive() {
			return usageError{errors.New("several networks match; pass --network")}
		}
		choice, err := a.Pick("Network", names)
		if err != nil {
			return err
		}
		org, _ := session.ActiveOrganization()
		for _, n := range matchingNetworks(org, types) {
			if n.DisplayName() == choice {
				return session.SelectNetworkByID(ctx, n.ID)
			}
		}
		return fmt.Errorf("%w: %q", common.ErrUnknownNetwork, choice)
	}

	if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
		err := session.SelectNetworkByID(ctx, id)
		if !errors.Is(err, common.ErrUnknownNetwork) {
			return err
		}
	}
	_, err := session.SelectNetworkByName(ctx, selector, types...)
	return err
}

// matchingNetworks returns the selectable networks of org whose type is one
// of types, ordered by display name.
func matchingNetworks(org dashboard.Organization, types []dashboard.NetworkType) []dashboard.Network {
	var out []dashboard.Network
	for _, n := range org.Networks() {
		if n.IsTemplate {
			continue
		}
		if len(types) > 0 && !containsType(types, n.Type) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out
}

func containsType(types []dashboard.NetworkType, t dashboard.NetworkType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// withSession logs in, runs fn and logs out.
func (a *App) withSession(ctx context.Context, fn func(*dashboard.Session, credentials) error) error {
	session, creds, err := a.login(ctx)
	if err != nil {
		return err
	}
	defer a.logout(ctx, session)
	return fn(session, creds)
}
