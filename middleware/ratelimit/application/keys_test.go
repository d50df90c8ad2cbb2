package application

import (
	"testing"

	"request-guard/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1":              "10.0.0.1",
		"10.0.0.1:8080":         "10.0.0.1",
		" 10.0.0.1 ":            "10.0.0.1",
		"127.0.0.1":             LoopbackAddress,
		"127.0.0.2:1":           LoopbackAddress,
		"::1":                   LoopbackAddress,
		"[::1]:443":             LoopbackAddress,
		"::ffff:127.0.0.1":      LoopbackAddress,
		"localhost":             LoopbackAddress,
		"LOCALHOST:3000":        LoopbackAddress,
		"::ffff:10.0.0.1":       "10.0.0.1",
		"2001:db8::1":           "2001:db8::1",
		"[2001:DB8::1]:80":      "2001:db8::1",
		"fe80::1%eth0":          "fe80::1",
		"":                      UnknownAddress,
		"not-an-ip":             UnknownAddress,
		"999.1.1.1":             UnknownAddress,
		"10.0.0.1, 10.0.0.2":    UnknownAddress,
		"example.com:80":        UnknownAddress,
		"[2001:db8::1%eth0]:80": "2001:db8::1",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAddress(in), "input %q", in)
	}
}

func TestClientAddress_HeaderPrecedence(t *testing.T) {
	d := domain.RequestDescriptor{
		Headers: map[string]string{
			"x-forwarded-for":  " 1.2.3.4 , 5.6.7.8",
			"x-real-ip":        "2.2.2.2",
			"cf-connecting-ip": "3.3.3.3",
		},
		RemoteAddr: "10.0.0.9:5555",
	}
	assert.Equal(t, "1.2.3.4", ClientAddress(d))

	delete(d.Headers, "x-forwarded-for")
	assert.Equal(t, "2.2.2.2", ClientAddress(d))

	delete(d.Headers, "x-real-ip")
	assert.Equal(t, "3.3.3.3", ClientAddress(d))

	delete(d.Headers, "cf-connecting-ip")
	assert.Equal(t, "10.0.0.9", ClientAddress(d))
}

func TestClientAddress_EmptyForwardedHopFallsThrough(t *testing.T) {
	d := domain.RequestDescriptor{
		Headers:    map[string]string{"x-forwarded-for": " , 5.6.7.8"},
		RemoteAddr: "10.0.0.9:5555",
	}
	assert.Equal(t, "10.0.0.9", ClientAddress(d))
}

func TestIdentityHash(t *testing.T) {
	h := IdentityHash("Mozilla/5.0")
	assert.Len(t, h, 8)
	assert.Equal(t, h, IdentityHash("Mozilla/5.0"))
	assert.NotEqual(t, h, IdentityHash("curl/8.0"))
	assert.Len(t, IdentityHash(""), 8)
}

func TestDeriveKey(t *testing.T) {
	d := domain.RequestDescriptor{
		Headers:    map[string]string{"user-agent": "ua"},
		RemoteAddr: "[::1]:1234",
	}
	assert.Equal(t, domain.Key("api:localhost:"+IdentityHash("ua")), DeriveKey(domain.PolicyAPI, d))

	other := d
	other.Headers = map[string]string{"user-agent": "other"}
	assert.NotEqual(t, DeriveKey(domain.PolicyAPI, d), DeriveKey(domain.PolicyAPI, other))
	assert.NotEqual(t, DeriveKey(domain.PolicyAPI, d), DeriveKey(domain.PolicyGeneral, d))
}
