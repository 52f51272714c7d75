package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/pkg/handlers"
)

// Headers read by the header provider.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Provider resolves the actor for a request.
type Provider interface {
	Resolve(r *http.Request) (Actor, error)
}

// New builds the provider selected by cfg. The OIDC provider performs
// issuer discovery using ctx.
func New(ctx context.Context, cfg *config.AuthConfig) (Provider, error) {
	defaultRole, ok := ParseRole(cfg.DefaultRole)
	if !ok {
		return nil, fmt.Errorf("invalid default role %q", cfg.DefaultRole)
	}

	switch cfg.Provider {
	case config.AuthProviderOIDC:
		p, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		verifier := p.Verifier(&oidc.Config{ClientID: cfg.ClientID})
		return NewOIDC(verifier, cfg.RoleClaim, defaultRole), nil
	case config.AuthProviderHeader:
		if !cfg.AllowHeader {
			return nil, fmt.Errorf("header provider not allowed")
		}
		return NewHeader(defaultRole), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

type headerProvider struct {
	defaultRole Role
}

// NewHeader trusts the X-Actor-ID and X-Actor-Role request headers.
func NewHeader(defaultRole Role) Provider {
	return &headerProvider{defaultRole: defaultRole}
}

func (p *headerProvider) Resolve(r *http.Request) (Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return Actor{}, ErrUnauthenticated
	}

	role := p.defaultRole
	if v := r.Header.Get(HeaderActorRole); v != "" {
		parsed, ok := ParseRole(v)
		if !ok {
			return Actor{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, v)
		}
		role = parsed
	}

	return Actor{ID: id, Role: role}, nil
}

type oidcProvider struct {
	verifier    *oidc.IDTokenVerifier
	roleClaim   string
	defaultRole Role
}

// NewOIDC verifies bearer ID tokens. The subject becomes the actor id and the
// role is read from roleClaim, which may hold a string or a list of strings.
func NewOIDC(verifier *oidc.IDTokenVerifier, roleClaim string, defaultRole Role) Provider {
	return &oidcProvider{
		verifier:    verifier,
		roleClaim:   roleClaim,
		defaultRole: defaultRole,
	}
}

func (p *oidcProvider) Resolve(r *http.Request) (Actor, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return Actor{}, ErrUnauthenticated
	}

	token, err := p.verifier.Verify(r.Context(), raw)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return Actor{ID: token.Subject, Role: p.role(claims[p.roleClaim])}, nil
}

// role picks the most privileged recognized role from the claim value.
func (p *oidcProvider) role(claim any) Role {
	var values []string
	switch v := claim.(type) {
	case string:
		values = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	}

	best := p.defaultRole
	for _, v := range values {
		if r, ok := ParseRole(v); ok && rank(r) > rank(best) {
			best = r
		}
	}
	return best
}

func rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RolePublisher:
		return 2
	case RoleWorker:
		return 1
	default:
		return 0
	}
}

// Middleware resolves the actor for each request and stores it in the context.
// Requests that cannot be resolved receive 401.
func Middleware(p Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("system", "identity")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := p.Resolve(r)
			if err != nil {
				handlers.RespondError(w, logger, MapHTTPStatus(err), err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
