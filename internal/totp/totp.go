// Package totp generates time-based one-time passcodes for the portal's
// second authentication factor.
package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Code returns the 6-digit TOTP code for the shared secret at the given
// time, using the standard 30-second step.
func Code(secret string, at time.Time) (string, error) {
	secret = normalizeSecret(secret)
	if secret == "" {
		return "", errors.New("totp: empty secret")
	}

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("totp: generating code: %w", err)
	}
	return code, nil
}

// normalizeSecret strips the separators authenticator apps add when
// displaying a base32 secret.
func normalizeSecret(secret string) string {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	secret = strings.ReplaceAll(secret, " ", "")
	return strings.ReplaceAll(secret, "-", "")
}
