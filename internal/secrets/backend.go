package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"

	"edustat-engine/internal/config"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "edustat"
)

var ErrNoAPIKey = errors.New("backend API key not found (set source.api_key or store it in the keychain)")

// BackendAPIKey resolves the key for the hosted backend. An explicit
// source.api_key wins over the keychain.
func BackendAPIKey(cfg config.Config) (string, error) {
	if k := strings.TrimSpace(cfg.Source.APIKey); k != "" {
		return k, nil
	}

	key, err := keyring.Get(KeyringService, BackendKeyringAccount(cfg))
	if err == nil && strings.TrimSpace(key) != "" {
		return key, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring: %w", err)
	}
	return "", ErrNoAPIKey
}

func SetBackendAPIKey(account, key string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(KeyringService, account, key)
}

// DeleteBackendAPIKey removes the stored key. It returns ErrNoAPIKey when
// nothing was stored for account.
func DeleteBackendAPIKey(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoAPIKey
	}
	return err
}

// BackendKeyringAccount is source.keyring_account, or one derived from the
// backend host so that keys for different projects don't collide.
func BackendKeyringAccount(cfg config.Config) string {
	if a := strings.TrimSpace(cfg.Source.KeyringAccount); a != "" {
		return a
	}
	host := cfg.Source.BaseURL
	if u, err := url.Parse(cfg.Source.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("edustat:backend:%s", host)
}
