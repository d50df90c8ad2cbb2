// Package application contém os casos de uso (regras de aplicação) para rate limit,
// eventos de segurança e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Evaluate(ctx, desc) classifica a requisição e retorna uma Decision
// (allow/deny + remaining + reset + retry-after).
package application
