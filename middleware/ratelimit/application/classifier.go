package application

import (
	"net/http"
	"path"
	"strings"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

const defaultMessage = "Too many requests, please try again later."

// DefaultPolicies retorna a tabela padrão de buckets.
func DefaultPolicies() map[domain.PolicyName]domain.Policy {
	return map[domain.PolicyName]domain.Policy{
		domain.PolicyGeneral: {
			Name: domain.PolicyGeneral, Window: time.Minute, MaxRequests: 60,
			Message: defaultMessage,
		},
		domain.PolicyAPI: {
			Name: domain.PolicyAPI, Window: 15 * time.Minute, MaxRequests: 100,
			Message: "Too many API requests, please try again later.",
		},
		domain.PolicyAdmin: {
			Name: domain.PolicyAdmin, Window: time.Minute, MaxRequests: 100,
			Message: "Too many admin requests, please slow down.",
		},
		domain.PolicyAuthInternal: {
			Name: domain.PolicyAuthInternal, Window: 5 * time.Minute, MaxRequests: 20,
			Message: "Too many authentication requests, please try again later.",
		},
		domain.PolicyAuthLogin: {
			Name: domain.PolicyAuthLogin, Window: 15 * time.Minute, MaxRequests: 5,
			Message: "Too many login attempts, please try again in 15 minutes.",
		},
		domain.PolicyContact: {
			Name: domain.PolicyContact, Window: time.Hour, MaxRequests: 3,
			Message: "Too many form submissions, please try again later.",
		},
		domain.PolicyUpload: {
			Name: domain.PolicyUpload, Window: time.Hour, MaxRequests: 10,
			Message: "Too many uploads, please try again later.",
		},
	}
}

// credentialMarkers identificam submissão de credenciais (junto com POST).
var credentialMarkers = []string{"/callback/credentials", "/signin", "/login"}

type rule struct {
	bucket domain.PolicyName
	match  func(p, method string) bool
}

// rules em ordem de prioridade, mais específica primeiro. A primeira que casar vence.
var rules = []rule{
	{domain.PolicyAdmin, func(p, _ string) bool {
		return hasPathPrefix(p, "/admin") || hasPathPrefix(p, "/api/admin")
	}},
	// portal é tráfego autenticado de painel: usa a quota de admin
	{domain.PolicyAdmin, func(p, _ string) bool {
		return hasPathPrefix(p, "/portal") || hasPathPrefix(p, "/api/portal")
	}},
	// credenciais antes do prefixo /api/auth: sessão/callback não pode gastar a quota de login
	{domain.PolicyAuthLogin, isCredentialSubmission},
	{domain.PolicyAuthInternal, func(p, _ string) bool {
		return hasPathPrefix(p, "/api/auth")
	}},
	{domain.PolicyAuthInternal, func(p, _ string) bool {
		return hasPathPrefix(p, "/auth") || hasPathPrefix(p, "/login") ||
			hasPathPrefix(p, "/signin") || hasPathPrefix(p, "/register")
	}},
	{domain.PolicyContact, func(p, method string) bool {
		return hasPathPrefix(p, "/api/contact") || hasPathPrefix(p, "/api/leads") ||
			(method == http.MethodPost && hasPathPrefix(p, "/contact"))
	}},
	{domain.PolicyUpload, func(p, _ string) bool {
		return strings.HasPrefix(p, "/api/upload")
	}},
	{domain.PolicyAPI, func(p, _ string) bool {
		return hasPathPrefix(p, "/api")
	}},
}

// isCredentialSubmission: POST sob /api/auth com um marcador de credencial no path.
func isCredentialSubmission(p, method string) bool {
	if method != http.MethodPost || !hasPathPrefix(p, "/api/auth") {
		return false
	}
	for _, m := range credentialMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// Classifier mapeia (path, método) para exatamente um bucket.
type Classifier struct {
	policies map[domain.PolicyName]domain.Policy
}

// NewClassifier usa a tabela padrão sobrescrita por overrides.
func NewClassifier(overrides map[domain.PolicyName]domain.Policy) *Classifier {
	policies := DefaultPolicies()
	for name, p := range overrides {
		p.Name = name
		policies[name] = p
	}
	return &Classifier{policies: policies}
}

// Classify nunca falha: sem match, cai em "general".
func (c *Classifier) Classify(rawPath, method string) (domain.Policy, domain.PolicyName) {
	p := cleanPath(rawPath)
	method = strings.ToUpper(strings.TrimSpace(method))

	for _, r := range rules {
		if r.match(p, method) {
			return c.policies[r.bucket], r.bucket
		}
	}
	return c.policies[domain.PolicyGeneral], domain.PolicyGeneral
}

// Policy retorna a política de um bucket.
func (c *Classifier) Policy(name domain.PolicyName) (domain.Policy, bool) {
	p, ok := c.policies[name]
	return p, ok
}

// Policies retorna uma cópia da tabela efetiva.
func (c *Classifier) Policies() map[domain.PolicyName]domain.Policy {
	out := make(map[domain.PolicyName]domain.Policy, len(c.policies))
	for k, v := range c.policies {
		out[k] = v
	}
	return out
}

// cleanPath descarta query/fragmento e normaliza (//admin, /./admin, /api/../admin).
func cleanPath(p string) string {
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func hasPathPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
