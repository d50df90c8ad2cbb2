package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"request-guard/middleware/ratelimit/application"
	"request-guard/middleware/ratelimit/domain"
)

// DescriptorFunc converte a requisição HTTP no descriptor do domínio.
type DescriptorFunc func(r *http.Request) domain.RequestDescriptor

type Options struct {
	Service application.Service
	// DescriptorFn substitui a extração padrão, se definido.
	DescriptorFn DescriptorFunc
	// TrustForwardedHeaders habilita X-Forwarded-For / X-Real-IP / CF-Connecting-IP.
	// Sem isso o endereço vem só do RemoteAddr.
	TrustForwardedHeaders bool
	RejectStatus          int
	// ExcludePaths não passam pelo limiter (ex.: /healthz). Suporta prefixo com "*".
	ExcludePaths []string
}

var forwardedHeaders = map[string]bool{
	"x-forwarded-for":  true,
	"x-real-ip":        true,
	"cf-connecting-ip": true,
}

// DescriptorFromRequest copia método, path, headers (nomes em minúsculas) e RemoteAddr.
// Sem trustForwarded, os headers de endereço encaminhado são descartados.
func DescriptorFromRequest(r *http.Request, trustForwarded bool) domain.RequestDescriptor {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		if !trustForwarded && forwardedHeaders[lower] {
			continue
		}
		headers[lower] = values[0]
	}
	return domain.RequestDescriptor{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		RemoteAddr: r.RemoteAddr,
	}
}

func DefaultDescriptorFunc(trustForwarded bool) DescriptorFunc {
	return func(r *http.Request) domain.RequestDescriptor {
		return DescriptorFromRequest(r, trustForwarded)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.DescriptorFn == nil {
		opts.DescriptorFn = DefaultDescriptorFunc(opts.TrustForwardedHeaders)
	}
	classifier := opts.Service.Classifier
	if classifier == nil {
		classifier = application.NewClassifier(nil)
		opts.Service.Classifier = classifier
	}
	svc := opts.Service

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range opts.ExcludePaths {
				if matchPath(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			desc := opts.DescriptorFn(r)
			policy, _ := classifier.Classify(desc.Path, desc.Method)
			dec := svc.Apply(r.Context(), desc, policy)

			WriteHeaders(w, dec)
			if !dec.Allowed {
				writeDenied(w, opts.RejectStatus, policy, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders escreve X-RateLimit-* sempre e Retry-After só quando negado.
func WriteHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	// Reset em segundos unix, não em ms
	h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))
	if !dec.Allowed {
		h.Set("Retry-After", strconv.Itoa(dec.RetryAfterSeconds()))
	}
}

type deniedBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

func writeDenied(w http.ResponseWriter, status int, p domain.Policy, dec domain.Decision) {
	msg := p.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(deniedBody{
		Error:      "rate_limit_exceeded",
		Message:    msg,
		RetryAfter: dec.RetryAfterSeconds(),
	})
}

// matchPath aceita match exato ou prefixo com "*" no final.
func matchPath(path, pattern string) bool {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		return strings.HasPrefix(path, pattern[:n-1])
	}
	return path == pattern
}
