package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Update is one explicit mutation of the config document. The caller picks
// the variant; the store never guesses intent from the payload shape.
type Update interface {
	apply(cfg *GlobalConfig) error
	kind() string
}

// SetDefault changes the default driver.
type SetDefault struct {
	Driver string
}

func (u SetDefault) kind() string { return "set_default" }

func (u SetDefault) apply(cfg *GlobalConfig) error {
	if !IsKnownDriver(u.Driver) {
		return fmt.Errorf("unsupported storage type %q", u.Driver)
	}
	cfg.DefaultStorage = u.Driver
	return nil
}

// UpdateDriverConfig merges Patch, a JSON object, into the named driver's
// section. Fields absent from Patch keep their current values; secrets equal
// to MaskedValue keep the stored secret.
type UpdateDriverConfig struct {
	Driver string
	Patch  json.RawMessage
}

func (u UpdateDriverConfig) kind() string { return "update_driver_config" }

func (u UpdateDriverConfig) apply(cfg *GlobalConfig) error {
	switch u.Driver {
	case DriverTelegraph:
		return mergePatch(u.Patch, &cfg.Telegraph)
	case DriverR2:
		return mergePatch(u.Patch, &cfg.R2)
	default:
		return fmt.Errorf("unsupported storage type %q", u.Driver)
	}
}

// UpdateIsolation merges Patch into the isolation policy.
type UpdateIsolation struct {
	Patch json.RawMessage
}

func (u UpdateIsolation) kind() string { return "update_isolation" }

func (u UpdateIsolation) apply(cfg *GlobalConfig) error {
	return mergePatch(u.Patch, &cfg.Isolation)
}

// SetMaxUploadBytes changes the upload size limit. Zero restores the default.
type SetMaxUploadBytes struct {
	Bytes int64
}

func (u SetMaxUploadBytes) kind() string { return "set_max_upload_bytes" }

func (u SetMaxUploadBytes) apply(cfg *GlobalConfig) error {
	if u.Bytes < 0 {
		return fmt.Errorf("max upload bytes must not be negative")
	}
	cfg.MaxUploadBytes = u.Bytes
	return nil
}

// Patch marshals v into a patch payload, e.g. Patch(map[string]any{"enabled": true}).
func Patch(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable values (channels, funcs) get here.
		panic(fmt.Sprintf("config: marshal patch: %v", err))
	}
	return data
}

// mergePatch decodes patch onto dst. json.Unmarshal leaves struct fields that
// are absent from the input untouched, which is exactly a shallow merge.
func mergePatch(patch json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(patch)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("config patch must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid config patch: %w", err)
	}
	return nil
}
