// Package session issues and verifies signed demo tokens and persists
// admission state in Redis.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoSecret is returned when signing without a secret.
var ErrNoSecret = errors.New("session: signing secret is empty")

// Payload is the signed claim set. Times are Unix milliseconds.
type Payload struct {
	JTI string `json:"jti"`
	Sub string `json:"sub"`
	IAT int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// Expired reports whether the payload's expiry is in the past at now.
func (p Payload) Expired(now time.Time) bool {
	return now.UnixMilli() > p.Exp
}

// envelope is the outer token shape. D carries the exact signed bytes.
type envelope struct {
	D string `json:"d"`
	S string `json:"s"`
}

// Sign serializes p once, MACs those bytes with HMAC-SHA256 and returns
// base64(JSON{d, s}).
func Sign(p Payload, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(envelope{D: string(data), S: hex.EncodeToString(mac(data, secret))})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(env), nil
}

// Verify returns the payload of a well-formed token whose MAC matches, or
// nil. It does not check expiry and does not say which step failed.
func Verify(token, secret string) *Payload {
	if token == "" || secret == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	sig, err := hex.DecodeString(env.S)
	if err != nil {
		return nil
	}
	if !hmac.Equal(sig, mac([]byte(env.D), secret)) {
		return nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(env.D), &p); err != nil || p.JTI == "" {
		return nil
	}
	return &p
}

// Issue mints a payload for subject valid for ttl from now and signs it.
func Issue(subject string, ttl time.Duration, now time.Time, secret string) (Payload, string, error) {
	p := Payload{
		JTI: uuid.NewString(),
		Sub: subject,
		IAT: now.UnixMilli(),
		Exp: now.Add(ttl).UnixMilli(),
	}
	signed, err := Sign(p, secret)
	if err != nil {
		return Payload{}, "", err
	}
	return p, signed, nil
}

func mac(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}
