package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"edustat-engine/internal/config"
)

func TestBackendAPIKey(t *testing.T) {
	keyring.MockInit()

	cfg := config.Defaults()
	cfg.Source.BaseURL = "https://abc.example.co"

	if _, err := BackendAPIKey(cfg); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}

	acct := BackendKeyringAccount(cfg)
	if acct != "edustat:backend:abc.example.co" {
		t.Fatalf("account = %q", acct)
	}
	if err := SetBackendAPIKey(acct, "from-keychain"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := BackendAPIKey(cfg); err != nil || got != "from-keychain" {
		t.Fatalf("got %q, %v", got, err)
	}

	cfg.Source.APIKey = "  from-config "
	if got, _ := BackendAPIKey(cfg); got != "from-config" {
		t.Fatalf("config key should win, got %q", got)
	}

	if err := DeleteBackendAPIKey(acct); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cfg.Source.APIKey = ""
	if _, err := BackendAPIKey(cfg); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("after delete err = %v", err)
	}
	if err := DeleteBackendAPIKey(acct); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("second delete err = %v, want ErrNoAPIKey", err)
	}
}

func TestSetBackendAPIKeyRejectsEmpty(t *testing.T) {
	keyring.MockInit()
	if err := SetBackendAPIKey("", "k"); err == nil {
		t.Fatal("empty account accepted")
	}
	if err := SetBackendAPIKey("a", " "); err == nil {
		t.Fatal("empty key accepted")
	}
}

func TestKeyringAccountOverride(t *testing.T) {
	cfg := config.Defaults()
	cfg.Source.KeyringAccount = "custom"
	if got := BackendKeyringAccount(cfg); got != "custom" {
		t.Fatalf("got %q", got)
	}
}
