package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fireplay/bus"
	"fireplay/clients/identity"
	"fireplay/errs"

	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is returned when the identity provider rejects the
// supplied email/password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Gate owns the single session of one device. State moves from Unresolved to
// Authenticated or Anonymous, and then only between those two.
type Gate struct {
	provider identity.Client
	changes  *bus.Bus
	now      func() time.Time

	mu      sync.Mutex
	state   State
	current *Identity
}

func NewGate(provider identity.Client) *Gate {
	return &Gate{
		provider: provider,
		changes:  bus.New("session:changed"),
		now:      time.Now,
	}
}

// Subscribe registers fn for every identity change. Listeners read the new
// value through Identity.
func (g *Gate) Subscribe(fn func()) func() {
	return g.changes.Subscribe(fn)
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Loading is true until the first resolution.
func (g *Gate) Loading() bool {
	return g.State() == Unresolved
}

// Authenticated is the flag mirrored into the fireplayAuth cookie.
func (g *Gate) Authenticated() bool {
	return g.State() == Authenticated
}

// Identity returns a copy of the current identity without refreshing it.
func (g *Gate) Identity() *Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	id := *g.current
	return &id
}

// Resolve settles an Unresolved gate from a verified token, or from its
// absence. On a resolved gate a non-nil identity replaces the session and a
// nil identity changes nothing.
func (g *Gate) Resolve(id *Identity) {
	g.mu.Lock()
	if g.state != Unresolved && id == nil {
		g.mu.Unlock()
		return
	}
	changed := g.set(id)
	g.mu.Unlock()
	if changed {
		g.changes.Publish()
	}
}

// set must be called with mu held. It reports whether the user changed.
func (g *Gate) set(id *Identity) bool {
	prevUser := ""
	if g.current != nil {
		prevUser = g.current.UserID
	}
	prevState := g.state

	if id == nil {
		g.state = Anonymous
		g.current = nil
		return prevState != Anonymous
	}
	cp := *id
	g.state = Authenticated
	g.current = &cp
	return prevState != Authenticated || prevUser != id.UserID
}

func (g *Gate) establish(id *Identity) {
	g.mu.Lock()
	changed := g.set(id)
	g.mu.Unlock()
	if changed {
		g.changes.Publish()
	}
	log.Info().Str("uid", id.UserID).Msg("session established")
}

func (g *Gate) identityFrom(resp *identity.AuthResponse, fallbackName string) *Identity {
	name := resp.DisplayName
	if name == "" {
		name = fallbackName
	}
	return &Identity{
		UserID:       resp.UserID,
		Email:        resp.Email,
		DisplayName:  name,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    g.now().Add(resp.ExpiresIn),
	}
}

func providerError(op string, err error) error {
	if identity.IsCredentials(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidCredentials, err)
	}
	return errs.Remote(op, err)
}

// SignUp creates the account, sets its display name and establishes the
// session. Form errors are returned before any network call.
func (g *Gate) SignUp(ctx context.Context, form SignUpForm) (*Identity, error) {
	if err := errs.Struct(form); err != nil {
		return nil, err
	}
	resp, err := g.provider.SignUp(ctx, form.Email, form.Password)
	if err != nil {
		return nil, providerError("sign up", err)
	}

	id := g.identityFrom(resp, form.Name)
	updated, err := g.provider.UpdateProfile(ctx, resp.IDToken, form.Name)
	if err != nil {
		// The account exists and is signed in; only the display name is missing.
		log.Warn().Err(err).Str("uid", resp.UserID).Msg("failed to set display name")
	} else if updated.IDToken != "" {
		id.IDToken = updated.IDToken
		id.RefreshToken = updated.RefreshToken
		id.ExpiresAt = g.now().Add(updated.ExpiresIn)
	}

	g.establish(id)
	return g.Identity(), nil
}

func (g *Gate) SignIn(ctx context.Context, form SignInForm) (*Identity, error) {
	if err := errs.Struct(form); err != nil {
		return nil, err
	}
	resp, err := g.provider.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		return nil, providerError("sign in", err)
	}
	g.establish(g.identityFrom(resp, ""))
	return g.Identity(), nil
}

// Logout clears the identity. Signing out is local to this gate.
func (g *Gate) Logout() {
	g.mu.Lock()
	uid := ""
	if g.current != nil {
		uid = g.current.UserID
	}
	changed := g.set(nil)
	g.mu.Unlock()
	if changed {
		g.changes.Publish()
	}
	log.Info().Str("uid", uid).Msg("session closed")
}

// Current returns the live identity, refreshing an expired token once. A
// failed refresh is treated as external session expiry.
func (g *Gate) Current(ctx context.Context) *Identity {
	g.mu.Lock()
	if g.current == nil {
		g.mu.Unlock()
		return nil
	}
	if g.now().Before(g.current.ExpiresAt) {
		id := *g.current
		g.mu.Unlock()
		return &id
	}
	uid, refreshToken := g.current.UserID, g.current.RefreshToken
	g.mu.Unlock()

	resp, err := g.provider.Refresh(ctx, refreshToken)

	g.mu.Lock()
	// Another caller may have replaced or closed the session meanwhile.
	if g.current == nil || g.current.UserID != uid {
		g.mu.Unlock()
		return g.Identity()
	}
	if err != nil || resp.IDToken == "" {
		g.set(nil)
		g.mu.Unlock()
		log.Warn().Err(err).Str("uid", uid).Msg("session expired")
		g.changes.Publish()
		return nil
	}
	g.current.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		g.current.RefreshToken = resp.RefreshToken
	}
	g.current.ExpiresAt = g.now().Add(resp.ExpiresIn)
	id := *g.current
	g.mu.Unlock()
	return &id
}

// Close releases every listener.
func (g *Gate) Close() {
	g.Logout()
}
