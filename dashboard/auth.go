package dashboard

import (
	"context"
	"strings"

	"github.com/yllada/merlink/common"
)

// AuthOutcome is the result of a login attempt.
type AuthOutcome int

const (
	OutcomeConnectionError AuthOutcome = iota
	OutcomeInvalidCredentials
	OutcomeSecondFactorRequired
	OutcomeAuthenticated
)

// String returns a human-readable representation of the outcome.
func (o AuthOutcome) String() string {
	switch o {
	case OutcomeConnectionError:
		return "ConnectionError"
	case OutcomeInvalidCredentials:
		return "InvalidCredentials"
	case OutcomeSecondFactorRequired:
		return "SecondFactorRequired"
	case OutcomeAuthenticated:
		return "Authenticated"
	default:
		return "Unknown"
	}
}

// Markers the dashboard leaves in redirect locations and page bodies.
const (
	failedLoginMarker  = "/login/login"
	secondFactorMarker = "sms_auth"
	invalidCodeMarker  = "Invalid verification code"
)

// Login form field names.
const (
	fieldEmail    = "email"
	fieldPassword = "password"
	fieldCode     = "code"
	submitCommit  = "commit"
)

// classifyLogin maps the post-submit location to an outcome. Order matters.
func classifyLogin(location string) AuthOutcome {
	switch {
	case strings.Contains(location, failedLoginMarker):
		return OutcomeInvalidCredentials
	case strings.Contains(location, secondFactorMarker):
		return OutcomeSecondFactorRequired
	default:
		return OutcomeAuthenticated
	}
}

// Authenticate submits the login form. Previous session state is replaced
// once the dashboard has answered the submission; a transport failure
// leaves it untouched.
//
// When the outcome is OutcomeAuthenticated the catalog has been seeded,
// unless a non-nil error is also returned: in that case the credentials
// were accepted but the landing page could not be read, and the session
// is left as it was before the call.
func (s *Session) Authenticate(ctx context.Context, username, password string) (AuthOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("Logging in to %s as %s", s.endpoints.AccountURL, username)

	if _, err := s.source.Open(ctx, s.endpoints.account(common.LoginPath)); err != nil {
		s.log.Error("Cannot open login page: %v", err)
		return OutcomeConnectionError, common.JoinSentinel(common.ErrConnection, err)
	}

	page, err := s.source.Submit(ctx, Form{
		Fields: map[string]string{
			fieldEmail:    username,
			fieldPassword: password,
		},
		Submit: submitCommit,
	})
	if err != nil {
		s.log.Error("Login request failed: %v", err)
		return OutcomeConnectionError, common.JoinSentinel(common.ErrConnection, err)
	}

	outcome := classifyLogin(page.URL)
	switch outcome {
	case OutcomeInvalidCredentials:
		s.log.Warn("Login rejected for %s", username)
		s.reset()
		return outcome, nil
	case OutcomeSecondFactorRequired:
		s.log.Info("Dashboard requested a verification code")
		s.reset()
		s.state = stateAwaitingSecondFactor
		return outcome, nil
	}

	result, err := s.seed(ctx, page)
	if err != nil {
		s.log.Error("Login succeeded but the catalog could not be built: %v", err)
		return outcome, err
	}
	s.apply(result)
	return outcome, nil
}

// SubmitSecondFactor sends the verification code requested after
// Authenticate returned OutcomeSecondFactorRequired. It returns false when
// the dashboard rejected the code; the challenge stays pending so another
// code may be submitted.
func (s *Session) SubmitSecondFactor(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAwaitingSecondFactor {
		return false, common.ErrNotAwaitingSecondFactor
	}

	page, err := s.source.Submit(ctx, Form{
		Fields: map[string]string{fieldCode: strings.TrimSpace(code)},
		Submit: submitCommit,
	})
	if err != nil {
		return false, common.JoinSentinel(common.ErrConnection, err)
	}

	if strings.Contains(page.Body, invalidCodeMarker) {
		s.log.Warn("Verification code rejected")
		return false, nil
	}

	result, err := s.seed(ctx, page)
	if err != nil {
		s.state = stateIdle
		s.log.Error("Verification accepted but the catalog could not be built: %v", err)
		return true, err
	}
	s.apply(result)
	return true, nil
}

// Logout ends the dashboard session. It reports whether the dashboard
// redirected back to the login page. On transport failure the session is
// left untouched.
func (s *Session) Logout(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.source.Open(ctx, s.endpoints.account(common.LogoutPath))
	if err != nil {
		return false, common.JoinSentinel(common.ErrConnection, err)
	}
	s.reset()
	s.log.Info("Logged out")
	return strings.Contains(page.URL, common.LoginPath), nil
}
