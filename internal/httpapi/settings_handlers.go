package httpapi

import (
	"net/http"

	"edustat-engine/internal/events"
	"edustat-engine/internal/prefs"
)

type SettingsHandler struct {
	Prefs *prefs.Store
	Hub   *events.Hub
}

func (h SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Prefs.Get())
}

func (h SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var in prefs.Preferences
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	saved, err := h.Prefs.Update(func(p *prefs.Preferences) { *p = in })
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypeSettingsUpdated, 1, saved))
	}
	writeJSON(w, saved)
}
