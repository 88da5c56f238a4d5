// Package oauth1 implementa la firma HMAC-SHA1 de OAuth 1.0a y el handshake
// de tres pasos (request token → autorización → access token).
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// PercentEncode codifica según RFC 3986 con el set unreserved exacto
// [A-Za-z0-9-_.~]. No es url.QueryEscape: el espacio va como %20 (nunca '+')
// y '~' pasa sin escapar. La mayoría de los bugs de interop OAuth1 nacen acá.
func PercentEncode(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

// BaseString arma el signature base string:
// METHOD&enc(baseURI)&enc(pares "k=v" ordenados por key y unidos con "&").
// baseURI no debe traer query string; los parámetros de query/body firmables
// van en params junto con los oauth_*.
func BaseString(method, baseURI string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys) // byte-wise

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, PercentEncode(k)+"="+PercentEncode(params[k]))
	}

	return strings.ToUpper(method) + "&" +
		PercentEncode(baseURI) + "&" +
		PercentEncode(strings.Join(pairs, "&"))
}

// SigningKey arma la clave de firma: enc(consumerSecret)&enc(tokenSecret).
// tokenSecret es "" en el primer paso del handshake.
func SigningKey(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Sign computa HMAC-SHA1(signingKey, baseString) en base64. Pura, sin I/O.
func Sign(method, baseURI, consumerSecret, tokenSecret string, params map[string]string) string {
	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(BaseString(method, baseURI, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify re-computa la firma y compara. Útil para tests y para validar
// callbacks firmados por un consumer propio.
func Verify(method, baseURI, consumerSecret, tokenSecret, signature string, params map[string]string) bool {
	expected := Sign(method, baseURI, consumerSecret, tokenSecret, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// AuthorizationHeader serializa los parámetros oauth_* al header:
// OAuth k1="v1",k2="v2" — valores percent-encoded, envueltos en comillas
// literales, separados por coma, en orden de key estable.
func AuthorizationHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "oauth_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+`="`+PercentEncode(params[k])+`"`)
	}
	return "OAuth " + strings.Join(pairs, ",")
}
