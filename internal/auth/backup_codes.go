package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BackupCodeLength is 16 hex chars, 64 bits of entropy.
	BackupCodeLength = 16
	BackupCodeCount  = 8
	// BackupCodeBcryptCost balances verification latency against brute force.
	BackupCodeBcryptCost = 12
)

// BackupCode is a single-use MFA recovery code, stored hashed.
type BackupCode struct {
	Hash   string     `json:"hash"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
	UsedIP *string    `json:"used_ip,omitempty"`
}

// GenerateBackupCode returns one recovery code, formatted
// xxxx-xxxx-xxxx-xxxx for display, plus its bcrypt hash.
func GenerateBackupCode() (plainCode string, hashedCode string, err error) {
	randomBytes := make([]byte, BackupCodeLength/2)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	hexString := hex.EncodeToString(randomBytes)

	// Hash the raw hex string, not the dashed display form.
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(hexString), BackupCodeBcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash backup code: %w", err)
	}

	plainCode = formatBackupCode(hexString)

	return plainCode, string(hashedBytes), nil
}

// GenerateBackupCodes generates count recovery codes.
func GenerateBackupCodes(count int) (plainCodes []string, backupCodes []BackupCode, err error) {
	if count <= 0 {
		return nil, nil, fmt.Errorf("count must be greater than 0")
	}

	plainCodes = make([]string, 0, count)
	backupCodes = make([]BackupCode, 0, count)

	for i := 0; i < count; i++ {
		plain, hashed, err := GenerateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code %d: %w", i+1, err)
		}

		plainCodes = append(plainCodes, plain)
		backupCodes = append(backupCodes, BackupCode{
			Hash: hashed,
			Used: false,
		})
	}

	return plainCodes, backupCodes, nil
}

// VerifyBackupCode checks inputCode against the stored codes, skipping
// already-used ones. Returns the matching index when valid.
func VerifyBackupCode(backupCodes []BackupCode, inputCode string) (matchIndex int, valid bool, err error) {
	inputCode = strings.ToLower(inputCode)
	inputCode = strings.ReplaceAll(inputCode, " ", "")
	inputCode = strings.ReplaceAll(inputCode, "-", "")

	for i, code := range backupCodes {
		if code.Used {
			continue
		}

		err := bcrypt.CompareHashAndPassword([]byte(code.Hash), []byte(inputCode))
		if err == nil {
			return i, true, nil
		}
	}

	return -1, false, nil
}

// MarkBackupCodeAsUsed records the use of a code, in place.
func MarkBackupCodeAsUsed(backupCodes []BackupCode, index int, usedIP *string) error {
	if index < 0 || index >= len(backupCodes) {
		return fmt.Errorf("invalid backup code index: %d", index)
	}

	now := time.Now()
	backupCodes[index].Used = true
	backupCodes[index].UsedAt = &now
	backupCodes[index].UsedIP = usedIP

	return nil
}

// CountRemainingBackupCodes counts codes not yet used.
func CountRemainingBackupCodes(backupCodes []BackupCode) int {
	count := 0
	for _, code := range backupCodes {
		if !code.Used {
			count++
		}
	}
	return count
}

func formatBackupCode(hexString string) string {
	if len(hexString) != BackupCodeLength {
		return hexString
	}

	parts := []string{
		hexString[0:4],
		hexString[4:8],
		hexString[8:12],
		hexString[12:16],
	}

	return strings.Join(parts, "-")
}

// GenerateRandomToken returns a hex token for email verification and
// password reset links.
func GenerateRandomToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
