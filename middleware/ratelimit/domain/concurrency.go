package domain

import "context"

// SlotPool limita quantas requisições admitidas seguem ao upstream ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// O release devolvido deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	// InFlight é o número de vagas ocupadas no momento.
	InFlight() int
	Capacity() int
}
