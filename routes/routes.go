// Package routes holds the request middleware that binds a request to its
// device, settles the device session and guards page routes.
package routes

import (
	"net/http"
	"net/url"
	"strings"

	"fireplay/set"
)

const (
	DeviceCookie = "fireplayDevice"
	AuthCookie   = "fireplayAuth"

	authCookieMaxAge   = 7 * 24 * 60 * 60
	deviceCookieMaxAge = 365 * 24 * 60 * 60

	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

var (
	protectedRoutes = set.FromSlice([]string{"/dashboard", "/favorites", "/cart/checkout"})
	authRoutes      = set.FromSlice([]string{"/login", "/register"})
)

// Protected reports whether path needs a session. A route matches itself and
// everything below it.
func Protected(path string) bool {
	return protectedRoutes.Any(func(prefix string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	})
}

// AuthRoute reports whether path is only for visitors without a session.
func AuthRoute(path string) bool {
	return authRoutes.Contains(path)
}

// LoginRedirect is the login page that sends the visitor back to path.
func LoginRedirect(path string) string {
	q := url.Values{}
	q.Set("redirect", path)
	return LoginPath + "?" + q.Encode()
}

// Decide returns where a request for path must be sent, if anywhere.
func Decide(path string, authenticated bool) (string, bool) {
	if Protected(path) && !authenticated {
		return LoginRedirect(path), true
	}
	if AuthRoute(path) && authenticated {
		return DashboardPath, true
	}
	return "", false
}

func authenticatedCookie(r *http.Request) bool {
	c, err := r.Cookie(AuthCookie)
	return err == nil && c.Value == "true"
}
