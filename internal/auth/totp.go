package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image/png"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	recoveryAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	recoveryGroups      = 4
	recoveryGroupLength = 5
	qrCodeSize          = 200
	totpPeriod          = 30
)

// TwoFactorSetup is returned to the user when second factor setup starts
type TwoFactorSetup struct {
	Secret       string `json:"secret"`
	OTPAuthURL   string `json:"otpauthUrl"`
	QRCode       string `json:"qrCode"`
	RecoveryCode string `json:"recoveryCode"`
}

// GenerateTOTP creates a new TOTP key for account and renders its QR code
func GenerateTOTP(issuer, account string) (*otp.Key, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	qr := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return key, qr, nil
}

// MatchTOTP checks a 6 digit code against secret at now, allowing one step of
// skew, and returns the time step the code belongs to
func MatchTOTP(code, secret string, now time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, false
	}
	current := now.Unix() / totpPeriod
	for _, step := range []int64{current, current - 1, current + 1} {
		ok, err := totp.ValidateCustom(code, secret, time.Unix(step*totpPeriod, 0), totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err == nil && ok {
			return step, true
		}
	}
	return 0, false
}

// GenerateRecoveryCode returns a code formatted XXXXX-XXXXX-XXXXX-XXXXX
func GenerateRecoveryCode() (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(recoveryAlphabet)))
	for g := 0; g < recoveryGroups; g++ {
		if g > 0 {
			sb.WriteByte('-')
		}
		for i := 0; i < recoveryGroupLength; i++ {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", fmt.Errorf("failed to generate recovery code: %w", err)
			}
			sb.WriteByte(recoveryAlphabet[n.Int64()])
		}
	}
	return sb.String(), nil
}

// NormalizeRecoveryCode uppercases and trims user input
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashRecoveryCode hashes a recovery code for storage
func HashRecoveryCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(NormalizeRecoveryCode(code)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash recovery code: %w", err)
	}
	return string(hash), nil
}

// VerifyRecoveryCode reports whether code matches the stored hash
func VerifyRecoveryCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(NormalizeRecoveryCode(code))) == nil
}
