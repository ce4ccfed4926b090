package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"
	middleware "github.com/oapi-codegen/gin-middleware"
)

// GoogleSecureTokenJWKS serves the keys Firebase signs ID tokens with.
const GoogleSecureTokenJWKS = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

type key string

const claimsKey key = "id_token_claims"

// Claims is the verified subset of a Firebase ID token.
type Claims struct {
	UserID    string
	Email     string
	Name      string
	IDToken   string
	ExpiresAt time.Time
}

// FromContext returns the claims stored by Authenticate. ctx is normally the
// *gin.Context of the request.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(string(claimsKey)).(*Claims)
	return c, ok
}

var (
	ErrNoAuthHeader      = errors.New("Authorization header is missing")
	ErrInvalidAuthHeader = errors.New("Authorization header is malformed")
	ErrClaimsInvalid     = errors.New("Provided claims do not match expected scopes")
)

// GetJWSFromRequest extracts a JWS string from an Authorization: Bearer <jws> header
func GetJWSFromRequest(req *http.Request) (string, error) {
	authHdr := req.Header.Get("Authorization")
	// Check for the Authorization header.
	if authHdr == "" {
		return "", ErrNoAuthHeader
	}
	// We expect a header value of the form "Bearer <token>", with 1 space after
	// Bearer, per RFC 6750.
	prefix := "Bearer "
	if !strings.HasPrefix(authHdr, prefix) {
		return "", ErrInvalidAuthHeader
	}
	jws := strings.TrimSpace(strings.TrimPrefix(authHdr, prefix))
	if jws == "" {
		return "", ErrInvalidAuthHeader
	}
	return jws, nil
}

type KeySource interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

type remoteKeys struct {
	url string
	ar  *jwk.AutoRefresh
}

// NewRemoteKeys keeps a refreshed copy of the JWKS at url for the lifetime of ctx.
func NewRemoteKeys(ctx context.Context, url string) KeySource {
	ar := jwk.NewAutoRefresh(ctx)
	ar.Configure(url, jwk.WithMinRefreshInterval(time.Hour))
	return &remoteKeys{url: url, ar: ar}
}

func (r *remoteKeys) Keys(ctx context.Context) (jwk.Set, error) {
	return r.ar.Fetch(ctx, r.url)
}

// StaticKeys serves a fixed key set.
type StaticKeys struct {
	Set jwk.Set
}

func (s StaticKeys) Keys(context.Context) (jwk.Set, error) {
	return s.Set, nil
}

type Verifier struct {
	projectID string
	keys      KeySource
}

func NewVerifier(projectID string, keys KeySource) *Verifier {
	return &Verifier{projectID: projectID, keys: keys}
}

// Verify checks signature, issuer, audience and expiry of a Firebase ID token.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching signing keys: %w", err)
	}
	tok, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClaimsInvalid, err)
	}
	if tok.Subject() == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrClaimsInvalid)
	}
	claims := &Claims{
		UserID:    tok.Subject(),
		IDToken:   raw,
		ExpiresAt: tok.Expiration(),
	}
	if email, ok := tok.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if name, ok := tok.Get("name"); ok {
		claims.Name, _ = name.(string)
	}
	return claims, nil
}

// Authenticate is the openapi3filter hook for the bearerAuth scheme. On
// success the verified claims are stored on the gin context.
func (v *Verifier) Authenticate(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	// Our security scheme is named bearerAuth, ensure this is the case
	if input.SecuritySchemeName != "bearerAuth" {
		return fmt.Errorf("security scheme %s != 'bearerAuth'", input.SecuritySchemeName)
	}

	jws, err := GetJWSFromRequest(input.RequestValidationInput.Request)
	if err != nil {
		return fmt.Errorf("getting jws: %w", err)
	}

	claims, err := v.Verify(ctx, jws)
	if err != nil {
		return err
	}

	gCtx := middleware.GetGinContext(ctx)
	if gCtx != nil {
		gCtx.Set(string(claimsKey), claims)
	}
	return nil
}
