package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newTestJWKS(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": kid,
					"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "classifieds-auth",
		Audience:  jwt.ClaimStrings{"classifieds-api"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
	}
}

func TestVerifySubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := newTestJWKS(t, key, "kid-1")
	verifier, err := NewVerifier(Config{JWKSURL: jwks.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	subject, err := verifier.VerifySubject(signToken(t, key, "kid-1", baseClaims("user-1")))
	if err != nil {
		t.Fatalf("verify valid token: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", subject)
	}
}

func TestVerifySubjectRejectsForeignKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate foreign key: %v", err)
	}
	jwks := newTestJWKS(t, key, "kid-1")
	verifier, err := NewVerifier(Config{JWKSURL: jwks.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.VerifySubject(signToken(t, foreign, "kid-1", baseClaims("user-1"))); err == nil {
		t.Fatal("expected rejection for foreign signing key")
	}
}

func TestVerifySubjectRejectsExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := newTestJWKS(t, key, "kid-1")
	verifier, err := NewVerifier(Config{JWKSURL: jwks.URL, Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := baseClaims("user-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	if _, err := verifier.VerifySubject(signToken(t, key, "kid-1", claims)); err == nil {
		t.Fatal("expected rejection for expired token")
	}
}

func TestVerifySubjectRejectsWrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := newTestJWKS(t, key, "kid-1")
	verifier, err := NewVerifier(Config{JWKSURL: jwks.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := baseClaims("user-1")
	claims.Audience = jwt.ClaimStrings{"someone-else"}
	if _, err := verifier.VerifySubject(signToken(t, key, "kid-1", claims)); err == nil {
		t.Fatal("expected rejection for wrong audience")
	}
}

func TestVerifySubjectRequiresSubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := newTestJWKS(t, key, "kid-1")
	verifier, err := NewVerifier(Config{JWKSURL: jwks.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.VerifySubject(signToken(t, key, "kid-1", baseClaims(""))); err == nil {
		t.Fatal("expected rejection for missing subject")
	}
}
