package httpx

import (
	"context"
	"github.com/ariefcatur/woodchain/internal/accounts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strings"
)

const SessionCookie = "woodchain_session"

type SessionStore interface {
	Create(ctx context.Context, p accounts.Principal) (string, error)
	Get(ctx context.Context, token string) (accounts.Principal, error)
	Delete(ctx context.Context, token string) error
}

type AccountService interface {
	Signup(ctx context.Context, req accounts.SignupRequest) (accounts.Principal, error)
	Login(ctx context.Context, email, password string) (accounts.Principal, error)
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p accounts.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller attached by the session middleware.
func PrincipalFrom(ctx context.Context) (accounts.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(accounts.Principal)
	return p, ok
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// authenticate never rejects; an unknown or expired token just leaves the request anonymous.
func authenticate(sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if sessions == nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := sessions.Get(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "login required", Code: "UNAUTHENTICATED"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireSupplier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "login required", Code: "UNAUTHENTICATED"})
			return
		}
		if !p.IsSupplier() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "supplier account required", Code: "FORBIDDEN"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type AuthHandler struct {
	Accounts AccountService
	Sessions SessionStore
	Log      *zap.Logger
	Secure   bool // Secure flag on the session cookie
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.With(requireUser).Get("/me", h.me)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResp struct {
	Token     string             `json:"token"`
	Principal accounts.Principal `json:"principal"`
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req accounts.SignupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.Accounts.Signup(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.startSession(w, r, http.StatusCreated, p)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.startSession(w, r, http.StatusOK, p)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, code int, p accounts.Principal) {
	token, err := h.Sessions.Create(r.Context(), p)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, code, sessionResp{Token: token, Principal: p})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.Sessions.Delete(r.Context(), token); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, p)
}
