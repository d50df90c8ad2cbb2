// Package ratelimit fornece os adapters HTTP (net/http) do request-guard:
// rate limit por bucket, limite de concorrência e API administrativa.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: classificação de rota, derivação de chave, decisão allow/deny, eventos de segurança
//   - infra: janela deslizante em memória, monitor de violações, log de eventos, espelho Redis, métricas
//   - ratelimit (este pacote): middlewares HTTP, extração do descriptor, headers/status, rotas admin
//
// Fluxo no gateway:
//
//  1. Converte a requisição em domain.RequestDescriptor
//  2. Classifica path + método em um bucket (general, api, admin, auth-*, contact, upload)
//  3. Chama a camada application para obter a decisão
//  4. Escreve X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset
//  5. Se bloqueado, responde 429 com Retry-After; se não houver vaga, 503
//  6. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// O estado é por processo. Várias réplicas atrás de um balanceador limitam
// cada uma por conta própria.
package ratelimit
