package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/andrebq/sealgate/auth"
	"github.com/andrebq/sealgate/internal/logutil"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

type (
	credentialsRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	passwordRequest struct {
		Current string `json:"current"`
		Next    string `json:"next"`
	}

	themeRequest struct {
		Theme string `json:"theme"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}

	meResponse struct {
		Authenticated bool           `json:"authenticated"`
		User          *auth.Identity `json:"user,omitempty"`
		Theme         string         `json:"theme,omitempty"`
	}

	errorResponse struct {
		Error string `json:"error"`
		Field string `json:"field,omitempty"`
	}
)

const (
	maxBodyBytes = 16 << 10
)

// Handler returns the auth routes with the realm middleware installed.
func (s *Realm) Handler() http.Handler {
	router := httprouter.New()
	s.Mount(router)
	return s.Middleware(router)
}

// Mount adds the auth routes to router. The caller is responsible for
// wrapping router with Middleware.
func (s *Realm) Mount(router *httprouter.Router) {
	limit := httprate.Limit(s.opts.LoginRate, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))

	router.Handler(http.MethodPost, "/auth/register", limit(http.HandlerFunc(s.register)))
	router.Handler(http.MethodPost, "/auth/login", limit(http.HandlerFunc(s.login)))
	router.HandlerFunc(http.MethodPost, "/auth/logout", s.logout)
	router.HandlerFunc(http.MethodGet, "/auth/me", s.me)
	router.HandlerFunc(http.MethodPut, "/auth/theme", s.theme)

	router.Handler(http.MethodGet, "/api/whoami", s.Protect(http.HandlerFunc(s.whoami)))
	router.Handler(http.MethodPost, "/api/password", s.Protect(http.HandlerFunc(s.changePassword)))
}

func (s *Realm) register(w http.ResponseWriter, r *http.Request) {
	// closed registration answers the same whatever the body looks like
	if !s.program.RegistrationOpen() {
		s.opts.Observer.Register(auth.ErrRegistrationClosed)
		s.fail(w, r, auth.ErrRegistrationClosed)
		return
	}
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	profile, err := s.program.Register(r.Context(), req.Username, auth.PlainText(req.Password))
	s.opts.Observer.Register(err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Realm) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := s.program.Login(r.Context(), req.Username, auth.PlainText(req.Password))
	s.opts.Observer.Login(err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setCookie(w, token)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Realm) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := s.token(r)
	if next := s.program.Logout(token); next != "" {
		s.setCookie(w, next)
	} else {
		s.expireCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// me is meant for display only, it never fails because of the session.
func (s *Realm) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out meResponse
	if id, ok := auth.CurrentUser(ctx); ok {
		out.Authenticated = true
		out.User = &id
	}
	if c := auth.CheckFrom(ctx); c != nil {
		if res, err := c.Resolve(ctx); err == nil {
			out.Theme = res.Theme()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Realm) theme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if !decode(w, r, &req) {
		return
	}
	token, _ := s.token(r)
	next, err := s.program.SetTheme(token, req.Theme)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setCookie(w, next)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Realm) whoami(w http.ResponseWriter, r *http.Request) {
	res := auth.Run(r.Context(), s.guard, func(_ context.Context, id auth.Identity) (auth.Identity, error) {
		return id, nil
	})
	if res.Outcome != auth.OutcomeOK {
		s.render(w, r, res.Outcome, res.Target, res.ClearToken, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Value)
}

func (s *Realm) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	res := auth.Run(r.Context(), s.guard, func(ctx context.Context, id auth.Identity) (struct{}, error) {
		return struct{}{}, s.program.ChangePassword(ctx, id.ID, auth.PlainText(req.Current), auth.PlainText(req.Next))
	})
	switch {
	case res.Outcome == auth.OutcomeOK:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(res.Err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, res.Err.Error())
	default:
		s.render(w, r, res.Outcome, res.Target, res.ClearToken, res.Err)
	}
}

func (s *Realm) render(w http.ResponseWriter, r *http.Request, outcome auth.Outcome, target string, clear bool, err error) {
	if outcome == auth.OutcomeRedirect {
		s.deny(w, r, target, clear)
		return
	}
	s.fail(w, r, err)
}

func (s *Realm) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, auth.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "unable to process request")
	}
}

// decode accepts either a JSON body or a regular form post.
func decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return false
		}
		switch v := out.(type) {
		case *credentialsRequest:
			v.Username, v.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
		case *passwordRequest:
			v.Current, v.Next = r.PostForm.Get("current"), r.PostForm.Get("next")
		case *themeRequest:
			v.Theme = r.PostForm.Get("theme")
		}
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
