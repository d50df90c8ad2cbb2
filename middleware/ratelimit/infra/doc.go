// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela deslizante exata por chave (timestamps crus) com sweep periódico
//   - Monitor: contadores por (ip, endpoint) + ring buffer de violações
//   - EventLog: log de eventos de segurança (ring buffer + slog)
//   - RedisActivitySink: espelho das tentativas no Redis
//   - ThrottledAlert: escalonamento de eventos críticos via golang.org/x/time/rate
//   - Collector: métricas Prometheus calculadas no scrape
//   - NewSlotPool: vagas de concorrência sobre golang.org/x/sync/semaphore
//
// Tudo aqui vive na memória do processo. Com várias instâncias, cada uma
// aplica a quota só sobre o tráfego que viu.
package infra
