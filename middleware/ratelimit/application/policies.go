package application

import (
	"fmt"
	"os"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// PolicyFile é o formato do arquivo YAML de overrides:
//
//	whitelist: ["10.0.0.1"]
//	policies:
//	  api:
//	    window: 15m
//	    max_requests: 100
//	    message: "Too many API requests"
type PolicyFile struct {
	// Whitelist global, somada à whitelist de cada política.
	Whitelist []string                  `yaml:"whitelist"`
	Policies  map[string]PolicyOverride `yaml:"policies"`
}

// PolicyOverride só altera os campos informados.
type PolicyOverride struct {
	Window      string   `yaml:"window"`
	MaxRequests int      `yaml:"max_requests"`
	Whitelist   []string `yaml:"whitelist"`
	Message     string   `yaml:"message"`
}

// LoadPolicies lê o arquivo e aplica os overrides sobre a tabela padrão.
func LoadPolicies(path string) (map[domain.PolicyName]domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies aplica um documento YAML sobre DefaultPolicies.
func ParsePolicies(data []byte) (map[domain.PolicyName]domain.Policy, error) {
	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	policies := DefaultPolicies()
	for rawName, o := range f.Policies {
		name := domain.PolicyName(rawName)
		p, ok := policies[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, rawName)
		}
		if o.Window != "" {
			w, err := time.ParseDuration(o.Window)
			if err != nil {
				return nil, domain.NewValidationError(rawName, fmt.Sprintf("window %q: %v", o.Window, err))
			}
			p.Window = w
		}
		if o.MaxRequests != 0 {
			p.MaxRequests = o.MaxRequests
		}
		if o.Message != "" {
			p.Message = o.Message
		}
		p.Whitelist = normalizeAll(o.Whitelist)
		policies[name] = p
	}

	global := normalizeAll(f.Whitelist)
	for name, p := range policies {
		if len(global) > 0 {
			p.Whitelist = append(append([]string(nil), p.Whitelist...), global...)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		policies[name] = p
	}
	return policies, nil
}

// WithWhitelist devolve a tabela com addrs somados à whitelist de todas as políticas.
func WithWhitelist(policies map[domain.PolicyName]domain.Policy, addrs []string) map[domain.PolicyName]domain.Policy {
	extra := normalizeAll(addrs)
	out := make(map[domain.PolicyName]domain.Policy, len(policies))
	for name, p := range policies {
		if len(extra) > 0 {
			p.Whitelist = append(append([]string(nil), p.Whitelist...), extra...)
		}
		out[name] = p
	}
	return out
}

func normalizeAll(addrs []string) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, NormalizeAddress(a))
	}
	return out
}
