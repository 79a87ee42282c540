package httpapi

import (
	"errors"
	"net/http"
	"sync/atomic"

	"edustat-engine/internal/config"
	"edustat-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal       *atomic.Value // stores config.Config
	OnBackendKey func(key string)
}

type setBackendKeyReq struct {
	APIKey string `json:"api_key"`
}

func (h SecretsHandler) SetBackendKey(w http.ResponseWriter, r *http.Request) {
	var req setBackendKeyReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	if err := secrets.SetBackendAPIKey(secrets.BackendKeyringAccount(cfg), req.APIKey); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring_failed", "failed to store api key: "+err.Error())
		return
	}
	if h.OnBackendKey != nil {
		h.OnBackendKey(req.APIKey)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBackendKey forgets the keychain entry. The live client falls back to
// source.api_key from the config, which may be empty.
func (h SecretsHandler) DeleteBackendKey(w http.ResponseWriter, r *http.Request) {
	cfg := h.CfgVal.Load().(config.Config)
	err := secrets.DeleteBackendAPIKey(secrets.BackendKeyringAccount(cfg))
	if errors.Is(err, secrets.ErrNoAPIKey) {
		WriteError(w, r, http.StatusNotFound, "not_found", "no api key stored")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_failed", "failed to delete api key: "+err.Error())
		return
	}
	if h.OnBackendKey != nil {
		h.OnBackendKey(cfg.Source.APIKey)
	}
	w.WriteHeader(http.StatusNoContent)
}
