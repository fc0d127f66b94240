package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// CookieSigner binds session ids to the server's session secret, so a cookie
// value that was not issued by this service is rejected before Redis is hit.
type CookieSigner struct {
	key []byte
}

func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{key: []byte(secret)}
}

func (s *CookieSigner) mac(sid string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(sid))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Sign returns the cookie value for sid.
func (s *CookieSigner) Sign(sid string) string {
	return sid + "." + s.mac(sid)
}

// Verify returns the session id carried by a signed cookie value.
func (s *CookieSigner) Verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 {
		return "", false
	}
	sid, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(sid))) {
		return "", false
	}
	return sid, true
}
