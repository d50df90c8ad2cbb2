package application

import (
	"net"
	"strconv"
	"strings"

	"request-guard/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const (
	// UnknownAddress agrupa todo cliente sem endereço identificável.
	// Ele continua sujeito ao rate limit.
	UnknownAddress = "unknown"
	// LoopbackAddress é o token canônico para ::1, 127.x, localhost etc.
	LoopbackAddress = "localhost"

	identityHashLen = 8
)

// ClientAddress extrai o endereço do cliente: primeiro hop de X-Forwarded-For,
// depois X-Real-IP, CF-Connecting-IP e por fim o endereço do socket.
func ClientAddress(d domain.RequestDescriptor) string {
	if xff := d.Header("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return NormalizeAddress(ip)
		}
	}
	for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(d.Header(h)); v != "" {
			return NormalizeAddress(v)
		}
	}
	return NormalizeAddress(d.RemoteAddr)
}

// NormalizeAddress remove porta/zona, colapsa loopback e devolve "unknown"
// para qualquer coisa que não seja IP.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return UnknownAddress
	}
	if strings.EqualFold(s, LoopbackAddress) {
		return LoopbackAddress
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	if idx := strings.IndexByte(s, '%'); idx >= 0 {
		s = s[:idx]
	}
	if strings.EqualFold(s, LoopbackAddress) {
		return LoopbackAddress
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return UnknownAddress
	}
	if ip.IsLoopback() {
		return LoopbackAddress
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// IdentityHash é um hash rápido (xxhash) do user-agent, truncado em 8 hex.
func IdentityHash(identity string) string {
	h := strconv.FormatUint(xxhash.Sum64String(identity), 16)
	if len(h) < 16 {
		h = strings.Repeat("0", 16-len(h)) + h
	}
	return h[:identityHashLen]
}

// DeriveKey monta a chave padrão: política:endereço:hash(user-agent).
func DeriveKey(policy domain.PolicyName, d domain.RequestDescriptor) domain.Key {
	return domain.Key(string(policy) + ":" + ClientAddress(d) + ":" + IdentityHash(d.Header("User-Agent")))
}
