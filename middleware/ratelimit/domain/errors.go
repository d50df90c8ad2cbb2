package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPolicy indica um nome de bucket fora da tabela conhecida.
	ErrUnknownPolicy = errors.New("ratelimit: unknown policy")

	// ErrUnknownClearTarget indica um alvo inválido para Clear.
	ErrUnknownClearTarget = errors.New("ratelimit: unknown clear target")

	// ErrNoSlot indica que nenhuma vaga de concorrência abriu dentro do timeout.
	ErrNoSlot = errors.New("ratelimit: no concurrency slot available")

	// ErrClientGone indica que o contexto da requisição terminou antes da vaga.
	ErrClientGone = errors.New("ratelimit: client went away while waiting")
)

// ValidationError representa um erro de configuração de política.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ratelimit: invalid policy %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
