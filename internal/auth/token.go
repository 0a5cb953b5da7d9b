package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrAuthRequired = errors.New("auth_required")
	ErrUnauthorized = errors.New("unauthorized")
)

type Identity struct {
	UID   string
	Admin bool
}

// Verifier mints and verifies bearer tokens of the form "uid.signature"
// where signature = HMAC-SHA256(secret, uid). The configured admin key is
// accepted as an admin identity.
type Verifier struct {
	secret   []byte
	adminKey string
}

func NewVerifier(secret, adminKey string) *Verifier {
	return &Verifier{secret: []byte(secret), adminKey: adminKey}
}

func (v *Verifier) Mint(uid string) string {
	return uid + "." + v.sign(uid)
}

func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrAuthRequired
	}
	if v.adminKey != "" && token == v.adminKey {
		return Identity{Admin: true}, nil
	}
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return Identity{}, ErrUnauthorized
	}
	uid, sig := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(v.sign(uid))) {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UID: uid}, nil
}

func (v *Verifier) sign(uid string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(uid))
	return hex.EncodeToString(mac.Sum(nil))
}
