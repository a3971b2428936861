// Package session holds session cookie constants shared between the
// middleware and the external auth service's cookie contract.
package session

const (
	// CookieName is the session cookie issued by the auth service.
	CookieName = "tradevine_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"

	// CookieMaxAge matches the auth service's session duration (7 days).
	CookieMaxAge = 7 * 24 * 60 * 60
)
