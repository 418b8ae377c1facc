// Package config owns the storage configuration document: which drivers are
// enabled, their credentials, the default driver and auxiliary policy.
//
// The document lives in a single JSON file. Secrets are sealed on disk, masked
// for unprivileged readers and rehydrated when a client sends the mask back.
//
// Usage:
//
//	store, err := config.OpenStore("data/storage-config.json", os.Getenv("IMGBED_CONFIG_KEY"), log)
//	if err != nil { ... }
//
//	full := store.Full()     // live credentials, re-read from disk
//	safe := store.Masked()   // secrets replaced by config.MaskedValue
//
//	res := store.Save(config.SetDefault{Driver: config.DriverR2})
package config

import (
	"strings"
)

// Known driver variants. The names double as top-level section keys in the
// config document.
const (
	DriverTelegraph = "telegraph"
	DriverR2        = "r2"
)

// MaskedValue replaces every non-empty secret in a masked view. A client that
// echoes it back in an update keeps the stored secret.
const MaskedValue = "********"

// DefaultMaxUploadBytes matches the upload limit of the public upload form.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// KnownDrivers lists the variants in registration order.
func KnownDrivers() []string {
	return []string{DriverTelegraph, DriverR2}
}

// IsKnownDriver reports whether name is one of KnownDrivers.
func IsKnownDriver(name string) bool {
	return name == DriverTelegraph || name == DriverR2
}

// RelayConfig configures the bot-relay driver.
type RelayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`

	// APIBase overrides the bot API root, mostly for self-hosted API servers.
	APIBase string `json:"apiBase,omitempty"`
}

// Configured reports whether the required credentials are present.
func (c RelayConfig) Configured() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// NotifyTarget is an optional bot chat that receives upload notifications.
type NotifyTarget struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

// Configured reports whether notifications can be sent.
func (n NotifyTarget) Configured() bool {
	return n.BotToken != "" && n.ChatID != ""
}

// ObjectStoreConfig configures the S3-compatible object-store driver.
type ObjectStoreConfig struct {
	Enabled         bool   `json:"enabled"`
	AccountID       string `json:"accountId"`
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	BucketName      string `json:"bucketName"`
	PublicDomain    string `json:"publicDomain"`

	// UseSSL is a pointer so an absent field means "default" (TLS on).
	UseSSL *bool `json:"useSSL,omitempty"`

	Notify NotifyTarget `json:"notify"`
}

// Configured reports whether the required credentials are present.
func (c ObjectStoreConfig) Configured() bool {
	return (c.AccountID != "" || c.Endpoint != "") &&
		c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

// ResolvedEndpoint returns the host[:port] to dial: Endpoint when set,
// otherwise the account's R2 endpoint.
func (c ObjectStoreConfig) ResolvedEndpoint() string {
	if c.Endpoint != "" {
		ep := strings.TrimPrefix(strings.TrimPrefix(c.Endpoint, "https://"), "http://")
		return strings.TrimRight(ep, "/")
	}
	return c.AccountID + ".r2.cloudflarestorage.com"
}

// Secure reports whether TLS should be used.
func (c ObjectStoreConfig) Secure() bool {
	if c.UseSSL != nil {
		return *c.UseSSL
	}
	return !strings.HasPrefix(c.Endpoint, "http://")
}

// ResolvedRegion defaults to "auto", which R2 expects.
func (c ObjectStoreConfig) ResolvedRegion() string {
	if c.Region == "" {
		return "auto"
	}
	return c.Region
}

// GlobalConfig is the whole storage configuration document.
type GlobalConfig struct {
	DefaultStorage string            `json:"defaultStorage"`
	Telegraph      RelayConfig       `json:"telegraph"`
	R2             ObjectStoreConfig `json:"r2"`
	Isolation      IsolationPolicy   `json:"isolation"`
	MaxUploadBytes int64             `json:"maxUploadBytes,omitempty"`
}

// Default returns the compiled-in document used when the file is absent or
// unreadable.
func Default() GlobalConfig {
	return GlobalConfig{
		DefaultStorage: DriverTelegraph,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// UploadLimit returns MaxUploadBytes or the default when unset.
func (c GlobalConfig) UploadLimit() int64 {
	if c.MaxUploadBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return c.MaxUploadBytes
}

// Masked returns a copy with every non-empty secret replaced by MaskedValue.
func (c GlobalConfig) Masked() GlobalConfig {
	out := c.clone()
	for _, s := range out.secrets() {
		if *s != "" {
			*s = MaskedValue
		}
	}
	return out
}

// clone copies c, including the fields held by pointer.
func (c GlobalConfig) clone() GlobalConfig {
	out := c
	if c.R2.UseSSL != nil {
		v := *c.R2.UseSSL
		out.R2.UseSSL = &v
	}
	return out
}

// secrets lists pointers to every secret field, in a stable order.
func (c *GlobalConfig) secrets() []*string {
	return []*string{
		&c.Telegraph.BotToken,
		&c.R2.AccessKeyID,
		&c.R2.SecretAccessKey,
		&c.R2.Notify.BotToken,
	}
}

// rehydrate restores secrets that a client sent back as MaskedValue.
func (c *GlobalConfig) rehydrate(prev *GlobalConfig) {
	next, old := c.secrets(), prev.secrets()
	for i := range next {
		if *next[i] == MaskedValue {
			*next[i] = *old[i]
		}
	}
}

// Source supplies live configuration to drivers so rotated credentials are
// observed without a restart.
type Source interface {
	Full() GlobalConfig
}

// StaticSource is a Source that always returns the same document.
type StaticSource GlobalConfig

// Full implements Source.
func (s StaticSource) Full() GlobalConfig {
	return GlobalConfig(s).clone()
}
