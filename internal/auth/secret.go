package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any client id or secret mismatch.
var ErrInvalidCredentials = errors.New("invalid client credentials")

// HashSecret hashes a client secret with the configured cost.
func HashSecret(secret string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyClient checks a client id and secret against the configured pair.
// The id comparison is constant time and the hash is always checked, so a
// wrong id and a wrong secret take the same path.
func VerifyClient(wantID, secretHash, gotID, gotSecret string) error {
	idMatch := subtle.ConstantTimeCompare([]byte(wantID), []byte(gotID)) == 1
	hashErr := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(gotSecret))
	if !idMatch || hashErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
