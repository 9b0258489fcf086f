package httpserver

import (
	"net/http"

	"github.com/unrolled/secure"
)

// Harden adds the security headers every response should carry. In
// production plain HTTP requests are redirected to HTTPS.
func Harden(handler http.Handler, production bool) http.Handler {
	mw := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            stsSeconds(production),
		IsDevelopment:         !production,
	})
	return mw.Handler(handler)
}

func stsSeconds(production bool) int64 {
	if production {
		return 31536000
	}
	return 0
}
