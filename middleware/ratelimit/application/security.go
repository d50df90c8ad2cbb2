package application

import (
	"strings"

	"request-guard/middleware/ratelimit/domain"
)

// SecurityEvents monta eventos tipados com details consistentes e mascarados.
// Com Log nil, tudo vira no-op.
type SecurityEvents struct {
	Log domain.EventSink
}

func (s SecurityEvents) emit(ev domain.SecurityEvent) domain.SecurityEvent {
	if s.Log == nil {
		return ev
	}
	return s.Log.Log(ev)
}

func base(d domain.RequestDescriptor, typ domain.EventType, sev domain.Severity) domain.SecurityEvent {
	return domain.SecurityEvent{
		Type:           typ,
		Severity:       sev,
		Address:        ClientAddress(d),
		ClientIdentity: d.Header("User-Agent"),
		URL:            d.Path,
		Method:         d.Method,
		Details:        map[string]any{},
	}
}

// RateLimitViolation registra uma negação (severity high).
func (s SecurityEvents) RateLimitViolation(d domain.RequestDescriptor, addr string, p domain.Policy, attempts int) domain.SecurityEvent {
	ev := base(d, domain.EventRateLimitViolation, domain.SeverityHigh)
	ev.Address = addr
	ev.Details["policy"] = string(p.Name)
	ev.Details["limit"] = p.MaxRequests
	ev.Details["windowMs"] = p.Window.Milliseconds()
	ev.Details["attempts"] = attempts
	return s.emit(ev)
}

// AuthFailure registra falha de autenticação; o email vai mascarado.
func (s SecurityEvents) AuthFailure(d domain.RequestDescriptor, email, reason string) domain.SecurityEvent {
	ev := base(d, domain.EventAuthFailure, domain.SeverityMedium)
	if email != "" {
		ev.Details["email"] = MaskEmail(email)
	}
	ev.Details["reason"] = reason
	return s.emit(ev)
}

// SuspiciousRequest registra uma requisição suspeita com a severidade informada.
func (s SecurityEvents) SuspiciousRequest(d domain.RequestDescriptor, reason string, sev domain.Severity, details map[string]any) domain.SecurityEvent {
	if sev == "" {
		sev = domain.SeverityMedium
	}
	ev := base(d, domain.EventSuspiciousRequest, sev)
	for k, v := range details {
		ev.Details[k] = v
	}
	ev.Details["reason"] = reason
	return s.emit(ev)
}

// CSPViolation registra um relatório de Content-Security-Policy.
func (s SecurityEvents) CSPViolation(d domain.RequestDescriptor, report map[string]any) domain.SecurityEvent {
	ev := base(d, domain.EventCSPViolation, domain.SeverityLow)
	for k, v := range report {
		ev.Details[k] = v
	}
	return s.emit(ev)
}

// MiddlewareError registra uma falha interna do próprio guard.
func (s SecurityEvents) MiddlewareError(d domain.RequestDescriptor, err error) domain.SecurityEvent {
	ev := base(d, domain.EventMiddlewareError, domain.SeverityMedium)
	if err != nil {
		ev.Details["error"] = err.Error()
	}
	return s.emit(ev)
}

// MaskEmail mantém o primeiro e o último caractere do usuário e o domínio:
// jane.doe@example.com -> j***e@example.com.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return "***"
	}
	local, host := []rune(email[:at]), email[at:]
	switch len(local) {
	case 0:
		return "***" + host
	case 1:
		return string(local) + "***" + host
	}
	return string(local[0]) + "***" + string(local[len(local)-1]) + host
}
