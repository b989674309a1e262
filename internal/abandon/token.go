package abandon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"brandkit/internal/domain"
)

// ResumeClaims is the self-contained payload of a resume link. Validation
// needs no server-side lookup: the HMAC signature makes any mutation of
// the payload detectable.
type ResumeClaims struct {
	BrandID string `json:"brandId"`
	UserID  string `json:"userId"`
	Step    string `json:"step"`
	Exp     int64  `json:"exp"`
}

// SignResumeToken produces base64url(payload) + "." + hex(HMAC-SHA256).
func SignResumeToken(secret string, claims ResumeClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode resume claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signPayload(secret, payload), nil
}

// VerifyResumeToken checks the signature and the embedded expiry before
// trusting any field. Expiry enforcement happens here, at verify time,
// not only at the consuming endpoint.
func VerifyResumeToken(secret, token string) (*ResumeClaims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	expected := signPayload(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, domain.ErrTokenInvalid
	}
	var claims ResumeClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if claims.Exp == 0 || time.Now().Unix() > claims.Exp {
		return nil, domain.ErrTokenExpired
	}
	return &claims, nil
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
