package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/registry"
	"github.com/Doctor0Evil/WordMath/internal/store"
)

func (d *Dependencies) requireProfiles(w http.ResponseWriter) bool {
	if d.Profiles == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return false
	}
	return true
}

// validProfileName allows [a-z0-9_-], 1 to 64 chars. "default" is reserved
// for the config file's guard.
func validProfileName(name string) bool {
	if name == "" || len(name) > 64 || name == registry.DefaultProfile {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func (d *Dependencies) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	profiles, err := d.Profiles.ListProfiles(r.Context())
	if err != nil {
		d.Logger.Error("failed to list profiles", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list profiles"})
		return
	}

	resp := ProfileListResp{Profiles: make([]ProfileResp, 0, len(profiles))}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, profileToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	p, err := d.Profiles.GetProfile(r.Context(), r.PathValue("name"))
	if err != nil {
		d.Logger.Error("failed to get profile", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get profile"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Profile not found."})
		return
	}
	writeJSON(w, http.StatusOK, profileToResp(p))
}

// handlePutProfile creates or replaces a profile. The body is a full config
// document, checked against the JSON schema and the config validator.
func (d *Dependencies) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	name := r.PathValue("name")
	if !validProfileName(name) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid profile name"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	cfg, err := config.ParseJSON(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	p, err := d.Profiles.PutProfile(r.Context(), name, cfg)
	if err != nil {
		d.Logger.Error("failed to put profile", zap.String("profile", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to save profile"})
		return
	}
	d.Registry.Invalidate(name)
	writeJSON(w, http.StatusOK, profileToResp(p))
}

func (d *Dependencies) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	name := r.PathValue("name")
	err := d.Profiles.DeleteProfile(r.Context(), name)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Profile not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete profile", zap.String("profile", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete profile"})
		return
	}
	d.Registry.Invalidate(name)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	var req CreateKeyReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}

	k, fullKey, err := d.Profiles.CreateAPIKey(r.Context(), req.Name, req.Profile)
	if err != nil {
		d.Logger.Error("failed to create API key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create API key"})
		return
	}
	writeJSON(w, http.StatusCreated, CreateKeyResp{
		ID:        k.ID,
		Name:      k.Name,
		APIKey:    fullKey,
		KeyPrefix: k.KeyPrefix,
		Profile:   k.Profile,
		CreatedAt: k.CreatedAt,
	})
}

func (d *Dependencies) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if !d.requireProfiles(w) {
		return
	}
	err := d.Profiles.RevokeAPIKey(r.Context(), r.PathValue("prefix"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "API key not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to revoke API key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to revoke API key"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func profileToResp(p *store.Profile) ProfileResp {
	raw, err := config.MarshalJSON(&p.Config)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return ProfileResp{
		ID:        p.ID,
		Name:      p.Name,
		Config:    raw,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
