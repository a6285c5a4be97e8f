package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/schema"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

type configurationSummary struct {
	Key        string   `json:"key"`
	Identifier string   `json:"identifier"`
	Country    string   `json:"country"`
	Version    string   `json:"version"`
	ValidFrom  string   `json:"validFrom"`
	ValidTo    string   `json:"validTo"`
	Active     bool     `json:"active"`
	Default    bool     `json:"default"`
	Functions  []string `json:"functions"`
}

type configurationsResponse struct {
	ETag           string                 `json:"etag"`
	Configurations []configurationSummary `json:"configurations"`
}

type writeResponse struct {
	OK   bool   `json:"ok"`
	ETag string `json:"etag"`
}

// handleListConfigurations handles GET /v1/configurations
func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	reg := s.engine.Registry()
	etag := reg.ETag()
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", etag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	def, hasDefault := reg.Default()
	now := s.now()
	configs := reg.Configurations()
	resp := configurationsResponse{ETag: etag, Configurations: make([]configurationSummary, 0, len(configs))}
	for _, c := range configs {
		names := make([]string, 0, len(c.Logic.JfnDescriptors))
		for _, d := range c.Logic.JfnDescriptors {
			names = append(names, d.Name)
		}
		resp.Configurations = append(resp.Configurations, configurationSummary{
			Key:        c.Key(),
			Identifier: c.Identifier,
			Country:    c.Country,
			Version:    c.Version,
			ValidFrom:  c.ValidFrom,
			ValidTo:    c.ValidTo,
			Active:     c.ActiveAt(now),
			Default:    hasDefault && def.Key() == c.Key(),
			Functions:  names,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetConfiguration handles GET /v1/configurations/{country}/{version}
func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	want := store.Key(chi.URLParam(r, "country"), chi.URLParam(r, "version"))
	for _, c := range s.engine.Registry().Configurations() {
		if store.Key(c.Country, c.Version) == want {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	NotFoundError(w, r, "configuration "+want+" is not loaded")
}

// handleUpsertConfiguration handles PUT /v1/configurations. The document is
// checked against the schema and compiled before it is stored.
func (s *Server) handleUpsertConfiguration(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if !decodeJSON(w, r, &doc) {
		return
	}
	if err := s.engine.Validator().Validate(schema.Configuration, doc); err != nil {
		DomainError(w, r, err)
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		InternalError(w, r, "encode configuration")
		return
	}
	configs, err := rules.ParseJSON(raw)
	if err != nil {
		DomainError(w, r, err)
		return
	}
	c := configs[0]
	if _, err := ccl.NewRegistry(configs, ""); err != nil {
		DomainError(w, r, err)
		return
	}

	if err := s.store.UpsertConfiguration(r.Context(), c); err != nil {
		DomainError(w, r, err)
		return
	}
	s.log.Info().Str("configuration", c.Key()).Str("identifier", c.Identifier).Msg("configuration stored")
	s.reloadAndRespond(w, r)
}

// handleDeleteConfiguration handles DELETE /v1/configurations/{country}/{version}
func (s *Server) handleDeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	key := store.Key(chi.URLParam(r, "country"), chi.URLParam(r, "version"))
	def := s.engine.DefaultKey()
	if defCountry, defVersion, ok := strings.Cut(def, "@"); ok && store.Key(defCountry, defVersion) == key {
		writeErrorResponse(w, r, http.StatusConflict,
			NewErrorResponse(http.StatusConflict, ErrCodeConflict, "cannot delete the default configuration "+def))
		return
	}
	if err := s.store.DeleteConfiguration(r.Context(), chi.URLParam(r, "country"), chi.URLParam(r, "version")); err != nil {
		DomainError(w, r, err)
		return
	}
	s.log.Info().Str("configuration", key).Msg("configuration deleted")
	s.reloadAndRespond(w, r)
}

func (s *Server) reloadAndRespond(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.Reload(r.Context(), s.store); err != nil {
		telemetry.Reloads.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("reload after write failed")
		DomainError(w, r, err)
		return
	}
	telemetry.Reloads.WithLabelValues("ok").Inc()
	reg := s.engine.Registry()
	telemetry.ConfigurationsLoaded.Set(float64(len(reg.Configurations())))
	writeJSON(w, http.StatusOK, writeResponse{OK: true, ETag: reg.ETag()})
}

// handleStream handles GET /v1/configurations/stream. It sends the current
// ETag as an "init" event and every activated registry as an "update".
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, r, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := s.engine.Holder().Subscribe()
	defer unsubscribe()
	telemetry.SSEClients.Inc()
	defer telemetry.SSEClients.Dec()

	writeEvent(w, "init", s.engine.Registry().ETag())
	flusher.Flush()

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case etag, ok := <-updates:
			if !ok {
				return
			}
			writeEvent(w, "update", etag)
			flusher.Flush()
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, etag string) {
	data, _ := json.Marshal(map[string]string{"etag": etag})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
