// Package sharetoken issues and verifies signed, expiring read-only links to a
// document.
package sharetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Claims struct {
	DocumentID string `json:"doc"`
	OwnerID    string `json:"own"`
	JTI        string `json:"jti"`
	Exp        int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid share token")
	ErrExpiredToken = errors.New("expired share token")
)

// Issue signs a token for documentID that expires after ttl.
func Issue(secret []byte, documentID, ownerID string, ttl time.Duration, now time.Time) (string, Claims, error) {
	claims := Claims{
		DocumentID: documentID,
		OwnerID:    ownerID,
		JTI:        uuid.NewString(),
		Exp:        now.Add(ttl).Unix(),
	}
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), claims, nil
}

func Parse(secret []byte, token string, now time.Time) (Claims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.DocumentID == "" || claims.OwnerID == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if now.Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
