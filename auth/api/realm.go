package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/andrebq/sealgate/auth"
	"github.com/andrebq/sealgate/internal/logutil"
)

const (
	DefaultCookieName = "sealgate_session"
)

type (
	// Realm ties the auth program to HTTP. Every request passing through
	// Middleware gets its own auth.Check, protected handlers are wrapped by
	// Protect.
	Realm struct {
		program  *auth.Program
		resolver *auth.Resolver
		guard    *auth.Guard
		opts     Options
	}

	Options struct {
		CookieName   string
		SecureCookie bool
		// LoginRate is the number of login or register requests a single
		// client address can make per minute.
		LoginRate    int
		Observer     Observer
	}

	// Observer is told about auth outcomes, metrics.Metrics implements it.
	Observer interface {
		Login(err error)
		Register(err error)
		Resolution(state auth.State)
	}

	noopObserver struct{}

	// clearingWriter expires the session cookie right before the headers
	// go out, when the request resolution asked for it.
	clearingWriter struct {
		http.ResponseWriter
		realm         *Realm
		check         *auth.Check
		headerWritten bool
	}
)

var (
	bearerTokenRE = regexp.MustCompile(`^Bearer ([^\s]+)$`)
)

func NewRealm(program *auth.Program, resolver *auth.Resolver, guard *auth.Guard, opts Options) *Realm {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 20
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Realm{
		program:  program,
		resolver: resolver,
		guard:    guard,
		opts:     opts,
	}
}

// Middleware installs the per request check. Nothing is resolved here,
// the store is only hit when some handler asks for the user.
func (s *Realm) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, _ := s.token(r)
		check := auth.NewCheck(ctx, s.resolver, token)
		ctx = auth.WithCheck(ctx, check)
		wrapped := &clearingWriter{
			ResponseWriter: w,
			realm:          s,
			check:          check,
		}
		next.ServeHTTP(wrapped, r.WithContext(ctx))
	})
}

// Protect only calls sensitive after the guard accepted the request.
// Browsers are sent to the login path, bearer clients get a 401.
func (s *Realm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res := s.guard.Authorize(ctx)
		switch res.Outcome {
		case auth.OutcomeOK:
			sensitive.ServeHTTP(w, r)
		case auth.OutcomeRedirect:
			s.deny(w, r, res.Target, res.ClearToken)
		default:
			log := logutil.GetOrDefault(ctx)
			log.Error().Err(res.Err).Msg("Unable to authorize request")
			writeError(w, http.StatusInternalServerError, "unable to process request")
		}
	})
}

func (s *Realm) deny(w http.ResponseWriter, r *http.Request, target string, clear bool) {
	if clear {
		s.expireCookie(w)
	}
	if _, bearer := s.token(r); bearer {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// token returns the session token of r and whether it came from the
// Authorization header.
func (s *Realm) token(r *http.Request) (string, bool) {
	if groups := bearerTokenRE.FindStringSubmatch(r.Header.Get("Authorization")); len(groups) == 2 {
		return groups[1], true
	}
	c, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return "", false
	}
	return c.Value, false
}

func (s *Realm) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.program.Sealer().MaxAge() / time.Second),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Realm) expireCookie(w http.ResponseWriter) {
	if s.cookieSet(w.Header()) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Realm) cookieSet(h http.Header) bool {
	prefix := s.opts.CookieName + "="
	for _, v := range h.Values("Set-Cookie") {
		if strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return false
}

func (w *clearingWriter) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		if res, ok := w.check.Peek(); ok {
			w.realm.opts.Observer.Resolution(res.State())
			if res.ClearToken() {
				w.realm.expireCookie(w.ResponseWriter)
			}
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *clearingWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func (noopObserver) Login(error) {}
func (noopObserver) Register(error) {}
func (noopObserver) Resolution(auth.State) {}
