package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateBackupCode(t *testing.T) {
	plainCode, hashedCode, err := GenerateBackupCode()
	if err != nil {
		t.Fatalf("GenerateBackupCode() error = %v", err)
	}

	// 16 hex chars plus 3 dashes
	if len(plainCode) != 19 {
		t.Errorf("plainCode length = %d, want 19", len(plainCode))
	}

	parts := strings.Split(plainCode, "-")
	if len(parts) != 4 {
		t.Errorf("plainCode parts = %d, want 4", len(parts))
	}

	for i, part := range parts {
		if len(part) != 4 {
			t.Errorf("part[%d] length = %d, want 4", i, len(part))
		}
	}

	if !strings.HasPrefix(hashedCode, "$2a$") {
		t.Errorf("hashedCode prefix = %s, want $2a$", hashedCode[:4])
	}

	plainCodeWithoutDashes := strings.ReplaceAll(plainCode, "-", "")
	err = bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(plainCodeWithoutDashes))
	if err != nil {
		t.Errorf("bcrypt.CompareHashAndPassword() error = %v", err)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantError bool
	}{
		{"eight codes", 8, false},
		{"ten codes", 10, false},
		{"single code", 1, false},
		{"zero count", 0, true},
		{"negative count", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainCodes, backupCodes, err := GenerateBackupCodes(tt.count)

			if tt.wantError {
				if err == nil {
					t.Errorf("GenerateBackupCodes() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("GenerateBackupCodes() error = %v", err)
			}

			if len(plainCodes) != tt.count {
				t.Errorf("plainCodes length = %d, want %d", len(plainCodes), tt.count)
			}

			if len(backupCodes) != tt.count {
				t.Errorf("backupCodes length = %d, want %d", len(backupCodes), tt.count)
			}

			seenCodes := make(map[string]bool)
			for i, code := range plainCodes {
				if seenCodes[code] {
					t.Errorf("duplicate code at index %d: %s", i, code)
				}
				seenCodes[code] = true

				if backupCodes[i].Used {
					t.Errorf("backupCodes[%d].Used = true, want false", i)
				}
				if backupCodes[i].UsedAt != nil {
					t.Errorf("backupCodes[%d].UsedAt = %v, want nil", i, backupCodes[i].UsedAt)
				}
			}
		})
	}
}

func TestVerifyBackupCode(t *testing.T) {
	plainCodes, backupCodes, err := GenerateBackupCodes(5)
	if err != nil {
		t.Fatalf("GenerateBackupCodes() error = %v", err)
	}

	tests := []struct {
		name      string
		inputCode string
		wantIndex int
		wantValid bool
	}{
		{"valid code index 0", plainCodes[0], 0, true},
		{"valid code index 2", plainCodes[2], 2, true},
		{"uppercase input", strings.ToUpper(plainCodes[1]), 1, true},
		{"spaces instead of dashes", strings.ReplaceAll(plainCodes[3], "-", " "), 3, true},
		{"wrong code", "0000-0000-0000-0000", -1, false},
		{"malformed code", "invalid", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, valid, err := VerifyBackupCode(backupCodes, tt.inputCode)
			if err != nil {
				t.Fatalf("VerifyBackupCode() error = %v", err)
			}

			if valid != tt.wantValid {
				t.Errorf("VerifyBackupCode() valid = %v, want %v", valid, tt.wantValid)
			}

			if tt.wantValid && index != tt.wantIndex {
				t.Errorf("VerifyBackupCode() index = %d, want %d", index, tt.wantIndex)
			}
		})
	}
}

func TestVerifyBackupCode_UsedCode(t *testing.T) {
	plainCodes, backupCodes, err := GenerateBackupCodes(3)
	if err != nil {
		t.Fatalf("GenerateBackupCodes() error = %v", err)
	}

	usedIP := "192.168.1.100"
	err = MarkBackupCodeAsUsed(backupCodes, 1, &usedIP)
	if err != nil {
		t.Fatalf("MarkBackupCodeAsUsed() error = %v", err)
	}

	index, valid, err := VerifyBackupCode(backupCodes, plainCodes[1])
	if err != nil {
		t.Fatalf("VerifyBackupCode() error = %v", err)
	}

	if valid {
		t.Errorf("VerifyBackupCode() valid = true for used code, want false")
	}

	if index != -1 {
		t.Errorf("VerifyBackupCode() index = %d for used code, want -1", index)
	}

	// unused codes stay valid
	index, valid, err = VerifyBackupCode(backupCodes, plainCodes[0])
	if err != nil {
		t.Fatalf("VerifyBackupCode() error = %v", err)
	}

	if !valid {
		t.Errorf("VerifyBackupCode() valid = false for unused code, want true")
	}
}

func TestMarkBackupCodeAsUsed(t *testing.T) {
	_, backupCodes, err := GenerateBackupCodes(3)
	if err != nil {
		t.Fatalf("GenerateBackupCodes() error = %v", err)
	}

	usedIP := "203.0.113.42"

	tests := []struct {
		name      string
		index     int
		wantError bool
	}{
		{"valid index 0", 0, false},
		{"valid index 2", 2, false},
		{"negative index", -1, true},
		{"out of range index", 999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MarkBackupCodeAsUsed(backupCodes, tt.index, &usedIP)

			if tt.wantError {
				if err == nil {
					t.Errorf("MarkBackupCodeAsUsed() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("MarkBackupCodeAsUsed() error = %v", err)
			}

			if !backupCodes[tt.index].Used {
				t.Errorf("backupCodes[%d].Used = false, want true", tt.index)
			}

			if backupCodes[tt.index].UsedAt == nil {
				t.Errorf("backupCodes[%d].UsedAt = nil, want timestamp", tt.index)
			}

			if backupCodes[tt.index].UsedIP == nil || *backupCodes[tt.index].UsedIP != usedIP {
				t.Errorf("backupCodes[%d].UsedIP = %v, want %s", tt.index, backupCodes[tt.index].UsedIP, usedIP)
			}
		})
	}
}

func TestCountRemainingBackupCodes(t *testing.T) {
	_, backupCodes, err := GenerateBackupCodes(5)
	if err != nil {
		t.Fatalf("GenerateBackupCodes() error = %v", err)
	}

	remaining := CountRemainingBackupCodes(backupCodes)
	if remaining != 5 {
		t.Errorf("CountRemainingBackupCodes() = %d, want 5", remaining)
	}

	usedIP := "192.168.1.1"
	MarkBackupCodeAsUsed(backupCodes, 0, &usedIP)
	MarkBackupCodeAsUsed(backupCodes, 2, &usedIP)

	remaining = CountRemainingBackupCodes(backupCodes)
	if remaining != 3 {
		t.Errorf("CountRemainingBackupCodes() = %d, want 3", remaining)
	}

	MarkBackupCodeAsUsed(backupCodes, 1, &usedIP)
	MarkBackupCodeAsUsed(backupCodes, 3, &usedIP)
	MarkBackupCodeAsUsed(backupCodes, 4, &usedIP)

	remaining = CountRemainingBackupCodes(backupCodes)
	if remaining != 0 {
		t.Errorf("CountRemainingBackupCodes() = %d, want 0", remaining)
	}
}

func TestFormatBackupCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"standard 16 chars", "a3f29d7c4e1b8a6f", "a3f2-9d7c-4e1b-8a6f"},
		{"all alphanumeric", "1234567890abcdef", "1234-5678-90ab-cdef"},
		{"too short", "abc", "abc"},
		{"too long", "a3f29d7c4e1b8a6f7b4e", "a3f29d7c4e1b8a6f7b4e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatBackupCode(tt.input)
			if got != tt.want {
				t.Errorf("formatBackupCode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBackupCode_Uniqueness(t *testing.T) {
	// kept small, bcrypt makes each iteration expensive
	const iterations = 20
	seenCodes := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		plainCode, _, err := GenerateBackupCode()
		if err != nil {
			t.Fatalf("GenerateBackupCode() error = %v", err)
		}

		if seenCodes[plainCode] {
			t.Fatalf("duplicate code detected: %s", plainCode)
		}
		seenCodes[plainCode] = true
	}

	if len(seenCodes) != iterations {
		t.Errorf("generated %d codes, want %d", len(seenCodes), iterations)
	}
}
