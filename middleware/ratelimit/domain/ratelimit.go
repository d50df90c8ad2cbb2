package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"strings"
	"time"
)

// Key identifica uma janela no store: política + endereço normalizado + hash do user-agent.
type Key string

// PolicyName é o nome de um bucket de política.
type PolicyName string

const (
	PolicyGeneral      PolicyName = "general"
	PolicyAPI          PolicyName = "api"
	PolicyAdmin        PolicyName = "admin"
	PolicyAuthInternal PolicyName = "auth-internal"
	PolicyAuthLogin    PolicyName = "auth-login"
	PolicyContact      PolicyName = "contact"
	PolicyUpload       PolicyName = "upload"
)

// PolicyNames lista os buckets conhecidos, na ordem da tabela padrão.
var PolicyNames = []PolicyName{
	PolicyGeneral,
	PolicyAPI,
	PolicyAdmin,
	PolicyAuthInternal,
	PolicyAuthLogin,
	PolicyContact,
	PolicyUpload,
}

// RequestDescriptor é o que a camada web entrega ao limiter.
//
// Headers usa nomes em minúsculas; Header faz o lookup case-insensitive.
type RequestDescriptor struct {
	Method     string
	Path       string
	Headers    map[string]string
	RemoteAddr string
}

// Header retorna o valor do header ou "" quando ausente.
func (d RequestDescriptor) Header(name string) string {
	if d.Headers == nil {
		return ""
	}
	return d.Headers[strings.ToLower(name)]
}

// KeyFunc deriva uma chave customizada para uma política.
type KeyFunc func(RequestDescriptor) Key

// LimitListener é chamado de forma síncrona quando uma requisição é negada.
type LimitListener func(RequestDescriptor, Decision)

// Policy é a configuração imutável de um bucket.
// Uma instância por bucket, compartilhada (somente leitura) entre requisições.
type Policy struct {
	Name        PolicyName
	Window      time.Duration
	MaxRequests int
	// Whitelist contém endereços normalizados (match exato).
	Whitelist []string
	// KeyFunc substitui a derivação padrão de chave, se definido.
	KeyFunc KeyFunc
	// OnLimitReached é invocado em toda negação.
	OnLimitReached LimitListener
	Message        string
}

// Whitelisted informa se o endereço normalizado está na whitelist.
func (p Policy) Whitelisted(addr string) bool {
	for _, w := range p.Whitelist {
		if w == addr {
			return true
		}
	}
	return false
}

// Validate verifica janela e quota.
func (p Policy) Validate() error {
	if p.Window <= 0 {
		return NewValidationError(string(p.Name), "window must be positive")
	}
	if p.MaxRequests <= 0 {
		return NewValidationError(string(p.Name), "max requests must be positive")
	}
	return nil
}

// Decision é produzida a cada requisição e nunca persistida.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	// RetryAfter só é preenchido quando bloqueado (>= 1s).
	RetryAfter time.Duration
	Policy     PolicyName
	Key        Key
}

// RetryAfterSeconds retorna o valor do header Retry-After.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// WindowEntry guarda os timestamps da janela deslizante de uma chave.
//
// Depois de qualquer leitura todos os timestamps estão dentro de (now-window, now].
type WindowEntry struct {
	Key        Key
	Timestamps []time.Time
	ResetTime  time.Time
}

// Count é a ocupação atual da janela.
func (e WindowEntry) Count() int { return len(e.Timestamps) }

// WindowStore é o primitivo de enforcement (get/increment/reset).
//
// A implementação em memória vale só para o processo atual; um backend
// compartilhado pode ser plugado atrás do mesmo contrato.
type WindowStore interface {
	Get(key Key, window time.Duration) WindowEntry
	Increment(key Key, window time.Duration) WindowEntry
	// Admit é o check-and-increment atômico usado na admissão.
	Admit(key Key, window time.Duration, max int) (WindowEntry, bool)
	Reset(key Key)
}

// StoreStats é uma projeção de diagnóstico sobre o store.
type StoreStats struct {
	KeyCount             int `json:"keyCount"`
	TotalTrackedRequests int `json:"totalTrackedRequests"`
}
