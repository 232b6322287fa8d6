package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the Supabase access token fields the backend reads.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func parsePublicKey(pemKey string) (any, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}

// keyFor picks the verification key for alg. HMAC tokens use keyMaterial as
// the shared secret; RSA and ECDSA tokens expect a PEM public key.
func keyFor(alg, keyMaterial string) (jwt.Keyfunc, error) {
	switch alg {
	case "HS256", "HS384", "HS512":
		secret := []byte(keyMaterial)
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v (expected HMAC)", token.Header["alg"])
			}
			return secret, nil
		}, nil

	case "RS256", "RS384", "RS512":
		pub, err := parsePublicKey(keyMaterial)
		if err != nil {
			return nil, err
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v (expected RSA)", token.Header["alg"])
			}
			return rsaPub, nil
		}, nil

	case "ES256", "ES384", "ES512":
		pub, err := parsePublicKey(keyMaterial)
		if err != nil {
			return nil, err
		}
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not ECDSA")
		}
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v (expected ECDSA)", token.Header["alg"])
			}
			return ecPub, nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
}

// ValidateJWT verifies a Supabase access token and returns its claims.
func ValidateJWT(tokenString string, keyMaterial string) (*Claims, error) {
	if keyMaterial == "" {
		return nil, errors.New("no JWT key configured")
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token header: %w", err)
	}
	alg, ok := unverified.Header["alg"].(string)
	if !ok {
		return nil, errors.New("token header missing 'alg' field")
	}

	keyFunc, err := keyFor(alg, keyMaterial)
	if err != nil {
		return nil, fmt.Errorf("failed to build key for %s: %w", alg, err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
