package routes

import (
	"context"
	"net/http"
	"sync"

	"fireplay/device"
	"fireplay/services/session"
	"fireplay/validator"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const deviceKey = "fireplay_device"

// Guard redirects with 303 based on the fireplayAuth cookie alone.
func Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := Decide(c.Request.URL.Path, authenticatedCookie(c.Request))
		if !ok {
			c.Next()
			return
		}
		c.Redirect(http.StatusSeeOther, target)
		c.Abort()
	}
}

// Device attaches the device named by the fireplayDevice cookie, issuing a
// new id when the cookie is missing or malformed.
func Device(registry *device.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(DeviceCookie)
		if err != nil || !device.Valid(id) {
			id = device.NewID()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(DeviceCookie, id, deviceCookieMaxAge, "/", "", false, true)
		}
		c.Set(deviceKey, registry.Get(id))
		c.Next()
	}
}

// CurrentDevice returns the device attached by Device.
func CurrentDevice(c *gin.Context) *device.Device {
	d, _ := c.MustGet(deviceKey).(*device.Device)
	return d
}

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*validator.Claims, error)
}

// IdentityFromClaims builds a session identity from a verified ID token. It
// carries no refresh token, so the session ends when the token expires.
func IdentityFromClaims(claims *validator.Claims) *session.Identity {
	return &session.Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.Name,
		IDToken:     claims.IDToken,
		ExpiresAt:   claims.ExpiresAt,
	}
}

// Resolve settles an unresolved device session from the request's bearer
// token, or as anonymous when there is none. Resolved sessions are left alone.
func Resolve(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		gate := CurrentDevice(c).Gate
		if !gate.Loading() {
			c.Next()
			return
		}
		jws, err := validator.GetJWSFromRequest(c.Request)
		if err != nil {
			gate.Resolve(nil)
			c.Next()
			return
		}
		claims, err := verifier.Verify(c.Request.Context(), jws)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring invalid bearer token")
			gate.Resolve(nil)
			c.Next()
			return
		}
		gate.Resolve(IdentityFromClaims(claims))
		c.Next()
	}
}

// MirrorAuth mirrors the device session into the fireplayAuth cookie. The
// cookie is written just before the response headers go out so that it
// reflects what the handler did.
func MirrorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := CurrentDevice(c)
		c.Writer = &authWriter{ResponseWriter: c.Writer, gate: d.Gate}
		c.Next()
	}
}

type authWriter struct {
	gin.ResponseWriter
	gate *session.Gate
	once sync.Once
}

func (w *authWriter) sync() {
	w.once.Do(func() {
		cookie := &http.Cookie{
			Name:     AuthCookie,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		}
		if w.gate.Authenticated() {
			cookie.Value = "true"
			cookie.MaxAge = authCookieMaxAge
		} else {
			cookie.MaxAge = -1
		}
		http.SetCookie(w.ResponseWriter, cookie)
	})
}

func (w *authWriter) WriteHeader(code int) {
	w.sync()
	w.ResponseWriter.WriteHeader(code)
}

func (w *authWriter) WriteHeaderNow() {
	w.sync()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *authWriter) Write(b []byte) (int, error) {
	w.sync()
	return w.ResponseWriter.Write(b)
}

func (w *authWriter) WriteString(s string) (int, error) {
	w.sync()
	return w.ResponseWriter.WriteString(s)
}

func (w *authWriter) Flush() {
	w.sync()
	w.ResponseWriter.Flush()
}
