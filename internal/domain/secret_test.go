package domain

import (
	"testing"
	"time"
)

func TestSecretEntry_CloneIsDeep(t *testing.T) {
	version := int64(3)
	original := SecretEntry{
		Path:      "db/creds",
		Fields:    map[string]string{"username": "app"},
		Version:   &version,
		FetchedAt: time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC),
	}

	clone := original.Clone()
	clone.Fields["username"] = "changed"
	*clone.Version = 9

	if original.Fields["username"] != "app" {
		t.Errorf("clone shares Fields map with original")
	}
	if *original.Version != 3 {
		t.Errorf("clone shares Version pointer with original")
	}
}

func TestSecretEntry_CloneNilFields(t *testing.T) {
	clone := SecretEntry{Path: "empty"}.Clone()

	if clone.Fields == nil {
		t.Error("Clone() should never return nil Fields")
	}
	if clone.Version != nil {
		t.Error("Clone() should keep an absent version absent")
	}
}

func TestSecretEntry_VersionString(t *testing.T) {
	v := int64(12)
	if got := (SecretEntry{Version: &v}).VersionString(); got != "12" {
		t.Errorf("VersionString() = %q, want %q", got, "12")
	}
	if got := (SecretEntry{}).VersionString(); got != "N/A" {
		t.Errorf("VersionString() = %q, want %q", got, "N/A")
	}
}

func TestSecretEntry_DisplayFields(t *testing.T) {
	entry := SecretEntry{Path: "db/creds", Fields: map[string]string{"username": "app", "password": "s3cret"}}

	masked := entry.DisplayFields(false)
	if masked["username"] != MaskedValue || masked["password"] != MaskedValue {
		t.Errorf("values should be masked, got %v", masked)
	}

	revealed := entry.DisplayFields(true)
	if revealed["password"] != "s3cret" {
		t.Errorf("values should be revealed, got %v", revealed)
	}

	revealed["password"] = "changed"
	if entry.Fields["password"] != "s3cret" {
		t.Errorf("DisplayFields must not share the Fields map")
	}
}
