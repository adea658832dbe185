package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
)

// RuleSource provides the rules to display. *pbrmap.Manager implements it.
type RuleSource interface {
	Rules() []pbrmap.RuleView
	Maps() []pbrmap.MapView
	Map(name string) (pbrmap.MapView, bool)
	Interfaces() []pbrmap.InterfaceView
	Interface(name string) []pbrmap.InterfaceView
}

// Handler manages all API endpoints and dependencies.
type Handler struct {
	rules        RuleSource
	configHasher *config.ConfigHasher
}

// NewHandler creates a new API handler. configHasher may be nil.
func NewHandler(rules RuleSource, configHasher *config.ConfigHasher) *Handler {
	return &Handler{
		rules:        rules,
		configHasher: configHasher,
	}
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// GetPBR returns every managed rule.
// GET /api/v1/pbr
func (h *Handler) GetPBR(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.Rules()
	if rules == nil {
		rules = []pbrmap.RuleView{}
	}

	writeJSONData(w, PBRResponse{Summary: summarize(rules), Rules: rules})
}

// GetMaps returns rules grouped by pbr map.
// GET /api/v1/pbr/maps
func (h *Handler) GetMaps(w http.ResponseWriter, r *http.Request) {
	maps := h.rules.Maps()
	if maps == nil {
		maps = []pbrmap.MapView{}
	}
	writeJSONData(w, MapsResponse{Maps: maps})
}

// GetMap returns one pbr map.
// GET /api/v1/pbr/maps/{name}
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, ok := h.rules.Map(name)
	if !ok {
		var available []string
		for _, v := range h.rules.Maps() {
			available = append(available, v.Name)
		}
		WriteError(w, http.StatusNotFound, NewAPIError(ErrCodeNotFound, "pbr_map "+name+" not found").
			WithDetails(map[string]interface{}{"available": available}))
		return
	}
	writeJSONData(w, m)
}

// GetInterfaces returns rules grouped by interface.
// GET /api/v1/pbr/interfaces
func (h *Handler) GetInterfaces(w http.ResponseWriter, r *http.Request) {
	ifaces := h.rules.Interfaces()
	if ifaces == nil {
		ifaces = []pbrmap.InterfaceView{}
	}
	writeJSONData(w, InterfacesResponse{Interfaces: ifaces})
}

// GetInterface returns the bindings of one interface name in every namespace.
// GET /api/v1/pbr/interfaces/{name}
func (h *Handler) GetInterface(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if len(name) > 15 {
		WriteInvalidRequest(w, "interface name is longer than 15 characters")
		return
	}

	ifaces := h.rules.Interface(name)
	if len(ifaces) == 0 {
		WriteNotFound(w, "interface "+name)
		return
	}
	writeJSONData(w, InterfacesResponse{Interfaces: ifaces})
}

func summarize(rules []pbrmap.RuleView) PBRSummary {
	s := PBRSummary{Total: len(rules)}
	for _, r := range rules {
		switch {
		case !r.Desired:
			s.Removing++
		case r.Installed:
			s.Installed++
		case r.Status != "":
			s.Failed++
		}
	}
	return s
}
