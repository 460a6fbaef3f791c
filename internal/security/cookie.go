package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignClientID binds a client identifier to secret so the cookie carrying it
// cannot be forged into another client's session.
func SignClientID(secret string, clientID string) string {
	return clientID + "." + mac(secret, clientID)
}

// VerifyClientID returns the client identifier inside a signed cookie value.
func VerifyClientID(secret string, value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}
	clientID, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(mac(secret, clientID))) {
		return "", false
	}
	return clientID, true
}

func mac(secret string, parts ...string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strings.Join(parts, ":")))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
