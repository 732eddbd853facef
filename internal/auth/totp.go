package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

const (
	TOTPIssuer = "PentestGPT"
	TOTPPeriod = 30
	TOTPDigits = 6
)

// TOTPManager handles two-factor secret provisioning and code validation.
type TOTPManager struct {
	issuer string
}

func NewTOTPManager(issuer string) *TOTPManager {
	if issuer == "" {
		issuer = TOTPIssuer
	}
	return &TOTPManager{issuer: issuer}
}

// GenerateSecret creates a new TOTP key and returns the base32 secret
// along with the otpauth URL used for QR provisioning.
func (m *TOTPManager) GenerateSecret(accountName string) (secret string, otpURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// BuildOTPURL rebuilds the otpauth URL for an existing secret.
func (m *TOTPManager) BuildOTPURL(accountName, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", "30")

	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(m.issuer),
		url.PathEscape(accountName),
		v.Encode(),
	)
}

// GenerateQRCode renders the otpauth URL as a PNG.
func (m *TOTPManager) GenerateQRCode(otpURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(otpURL, qrcode.Medium, size)
}

// GenerateCode produces the code for the current time window. Test helper.
func (m *TOTPManager) GenerateCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}

// ValidateCode checks a user-supplied code against the secret,
// tolerating one time window of clock skew.
func (m *TOTPManager) ValidateCode(secret, code string) bool {
	code = strings.ReplaceAll(code, " ", "")
	return totp.Validate(code, secret)
}
