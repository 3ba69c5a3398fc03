// Package api implements the HTTP handlers of the TOP solver service.
package api

import (
    "errors"
    "net/http"
    "strings"

    "topsolver/internal/auth"
)

// Identity headers of dev mode.
const (
    headerTenant  = "X-Tenant-Id"
    headerRole    = "X-Role"
    defaultTenant = "t_demo"
)

var errNoToken = errors.New("bearer token required")

func bearerToken(r *http.Request) (string, bool) {
    authz := r.Header.Get("Authorization")
    if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") { return "", false }
    tok := strings.TrimSpace(authz[len("Bearer "):])
    return tok, tok != ""
}

// knownRole maps anything outside admin, solver and viewer to viewer.
func knownRole(role string) string {
    switch role = strings.ToLower(strings.TrimSpace(role)); role {
    case auth.RoleAdmin, auth.RoleSolver, auth.RoleViewer:
        return role
    }
    return auth.RoleViewer
}

func (s *Server) devAuth() bool { return s.Auth == nil || s.Auth.Mode == "dev" }

// authenticate resolves the caller from a bearer token. Outside dev mode the token is
// mandatory; in dev mode the identity headers stand in for it, defaulting to an admin
// of the demo tenant.
func (s *Server) authenticate(r *http.Request) (auth.Principal, error) {
    if tok, ok := bearerToken(r); ok && s.Auth != nil {
        pr, err := s.Auth.Verify(tok)
        if err == nil {
            pr.Role = knownRole(pr.Role)
            return pr, nil
        }
        if !s.devAuth() { return auth.Principal{}, err }
    }
    if !s.devAuth() { return auth.Principal{}, errNoToken }
    tenant := strings.TrimSpace(r.Header.Get(headerTenant))
    if tenant == "" { tenant = defaultTenant }
    role := auth.RoleAdmin
    if h := r.Header.Get(headerRole); h != "" { role = knownRole(h) }
    return auth.Principal{Tenant: tenant, Role: role}, nil
}

// getPrincipal is authenticate for handlers behind requireAuth, which has already
// rejected callers without a valid identity.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
    pr, _ := s.authenticate(r)
    return pr
}

// requireAuth answers 401 on /v1 routes when the caller cannot be authenticated.
func (s *Server) requireAuth(h http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if strings.HasPrefix(r.URL.Path, "/v1/") {
            if _, err := s.authenticate(r); err != nil {
                w.Header().Set("WWW-Authenticate", `Bearer realm="topsolver"`)
                writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
                return
            }
        }
        h.ServeHTTP(w, r)
    })
}
