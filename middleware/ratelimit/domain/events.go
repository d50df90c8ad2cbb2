package domain

import "time"

// EventType é a enumeração fechada de eventos de segurança.
type EventType string

const (
	EventRateLimitViolation EventType = "rate_limit_violation"
	EventAuthFailure        EventType = "auth_failure"
	EventSuspiciousRequest  EventType = "suspicious_request"
	EventCSPViolation       EventType = "csp_violation"
	EventMiddlewareError    EventType = "middleware_error"
)

// Severity do evento.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent é uma entrada do log de segurança.
//
// ID, Timestamp e Environment são preenchidos pelo log quando vazios.
type SecurityEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	Severity       Severity       `json:"severity"`
	Timestamp      time.Time      `json:"timestamp"`
	Address        string         `json:"ip"`
	ClientIdentity string         `json:"userAgent,omitempty"`
	URL            string         `json:"url,omitempty"`
	Method         string         `json:"method,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Environment    string         `json:"environment"`
}

// SecurityMetrics é o retrato agregado do log.
type SecurityMetrics struct {
	TotalEvents      int               `json:"totalEvents"`
	EventsByType     map[EventType]int `json:"eventsByType"`
	EventsBySeverity map[Severity]int  `json:"eventsBySeverity"`
	RecentEvents     []SecurityEvent   `json:"recentEvents"`
	// SuspiciousAddresses tem no máximo 20 endereços com eventos high/critical.
	SuspiciousAddresses []string `json:"suspiciousIPs"`
}

// AlertHook é o caminho de escalonamento para eventos críticos.
type AlertHook func(SecurityEvent)

// EventSink recebe eventos parciais e devolve o evento completo gravado.
type EventSink interface {
	Log(SecurityEvent) SecurityEvent
}
