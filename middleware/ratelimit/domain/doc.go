// Package domain reúne os tipos do request-guard: políticas e decisões do rate
// limit, entradas da janela deslizante, registros do monitor de violações,
// eventos de segurança e o contrato de vagas de concorrência.
//
// Nada aqui importa net/http ou implementações concretas; a camada web converte
// a requisição em RequestDescriptor antes de chegar neste pacote.
package domain
