package domain

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Attempt representa uma decisão do rate limit, permitida ou não.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Endpoint são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Endpoint sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type Attempt struct {
	Key            Key
	Address        string
	Endpoint       string
	Method         string
	ClientIdentity string
	Policy         PolicyName
	IsViolation    bool
	Limit          int
	AttemptCount   int
	At             time.Time
}

// ActivitySink é a estratégia de persistência externa das tentativas.
//
// Implementações podem armazenar em Redis, Postgres, memória, etc.
// O enforcer trata erro como best-effort (não derruba request).
type ActivitySink interface {
	Record(ctx context.Context, a Attempt) error
}

// AttemptRecorder recebe toda tentativa de forma síncrona (monitor em memória).
type AttemptRecorder interface {
	RecordAttempt(a Attempt)
}

// ViolationRecord é uma negação registrada no ring buffer do monitor.
type ViolationRecord struct {
	Address        string    `json:"ip"`
	Timestamp      time.Time `json:"timestamp"`
	Endpoint       string    `json:"endpoint"`
	ClientIdentity string    `json:"userAgent,omitempty"`
	Limit          int       `json:"limit"`
	AttemptCount   int       `json:"attempts"`
}

// AddressStat é uma linha do top de endereços.
type AddressStat struct {
	Address    string `json:"ip"`
	Requests   int    `json:"requests"`
	Violations int    `json:"violations"`
}

// EndpointStat agrega requisições e violações por endpoint.
type EndpointStat struct {
	Endpoint   string `json:"endpoint"`
	Requests   int    `json:"requests"`
	Violations int    `json:"violations"`
}

// RateLimitStats é o resultado de Monitor.Stats.
type RateLimitStats struct {
	Timeframe       time.Duration  `json:"-"`
	TimeframeMs     int64          `json:"timeframeMs"`
	TotalRequests   int            `json:"totalRequests"`
	UniqueAddresses int            `json:"uniqueIPs"`
	Violations      int            `json:"violations"`
	TopAddresses    []AddressStat  `json:"topIPs"`
	Endpoints       []EndpointStat `json:"endpointStats"`
}

// ClearTarget escolhe o que o reset administrativo apaga.
type ClearTarget string

const (
	ClearViolations ClearTarget = "violations"
	ClearCounters   ClearTarget = "counters"
	ClearAll        ClearTarget = "all"
)

// ParseClearTarget aceita "violations", "counters" ou "all" (vazio = all).
func ParseClearTarget(s string) (ClearTarget, error) {
	switch ClearTarget(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClearAll:
		return ClearAll, nil
	case ClearViolations:
		return ClearViolations, nil
	case ClearCounters:
		return ClearCounters, nil
	}
	return "", ErrUnknownClearTarget
}

// DefaultTimeframe é usado quando o timeframe não é reconhecido.
const DefaultTimeframe = time.Hour

var timeframeRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTimeframe converte "<inteiro><s|m|h|d>" em duração.
// Entradas inválidas caem no padrão de 1h, nunca em erro.
func ParseTimeframe(s string) time.Duration {
	m := timeframeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DefaultTimeframe
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return DefaultTimeframe
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	// evita overflow de time.Duration em valores absurdos
	if n > int64(1<<62)/int64(unit) {
		return DefaultTimeframe
	}
	return time.Duration(n) * unit
}
