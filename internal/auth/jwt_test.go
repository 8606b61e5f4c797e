package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testUserID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func signToken(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	return token
}

func TestParseTokenRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	token := signToken(t, key, jwt.SigningMethodRS256, Claims{
		UserID:   testUserID,
		UserType: UserTypeTimeTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})

	claims, err := ParseToken(&key.PublicKey, "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != testUserID || claims.UserType != UserTypeTimeTeacher {
		t.Fatalf("unexpected claims")
	}
	if !claims.IsStaff() || claims.IsPrivileged() {
		t.Fatalf("time teacher should be staff but not privileged")
	}

	if _, err := ParseToken(&key.PublicKey, "other-issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch to fail")
	}
}

func TestParseTokenRejectsExpiredAndMissingUser(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	expired := signToken(t, key, jwt.SigningMethodRS256, Claims{
		UserID: testUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	if _, err := ParseToken(&key.PublicKey, "", expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	anonymous := signToken(t, key, jwt.SigningMethodRS256, Claims{UserType: UserTypeAdmin})
	if _, err := ParseToken(&key.PublicKey, "", anonymous); err == nil {
		t.Fatalf("expected token without user id to fail")
	}

	malformed := signToken(t, key, jwt.SigningMethodRS256, Claims{
		UserID:   "abc",
		UserType: UserTypeStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	if _, err := ParseToken(&key.PublicKey, "", malformed); err == nil {
		t.Fatalf("expected token with non-uuid user id to fail")
	}

	if _, err := ParseToken(nil, "", anonymous); err == nil {
		t.Fatalf("expected missing public key to fail")
	}
}

func TestParseRSAPublicKeyFormats(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	pkixPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})
	if _, err := ParseRSAPublicKey(string(pkixPEM)); err != nil {
		t.Fatalf("pkix parse error: %v", err)
	}
	pkcs1PEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
	if _, err := ParseRSAPublicKey(string(pkcs1PEM)); err != nil {
		t.Fatalf("pkcs1 parse error: %v", err)
	}
	if _, err := ParseRSAPublicKey("not a key"); err == nil {
		t.Fatalf("expected invalid key to fail")
	}
}
