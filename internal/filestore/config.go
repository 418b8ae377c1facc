package filestore

import (
	"strings"

	"github.com/koustreak/imgbed/internal/errs"
)

// Config addresses one bucket on an S3-compatible endpoint.
type Config struct {
	Endpoint  string // host[:port], without scheme
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// Insecure dials plain HTTP, e.g. a local MinIO during development.
	Insecure bool
}

// NewConfig returns a TLS config in the "auto" region, which R2 expects.
func NewConfig(endpoint, bucket, accessKey, secretKey string) *Config {
	return &Config{
		Endpoint:  endpoint,
		Region:    "auto",
		Bucket:    bucket,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}
}

// Validate reports the first missing connection parameter.
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errs.New(errs.ErrKindDriverNotConfigured, "endpoint is required")
	case c.Bucket == "":
		return errs.New(errs.ErrKindDriverNotConfigured, "bucket name is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return errs.New(errs.ErrKindDriverNotConfigured, "access key and secret are required")
	}
	return nil
}

// Fingerprint changes whenever any connection parameter does. Two configs
// with equal fingerprints can share one client.
func (c *Config) Fingerprint() string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return strings.Join([]string{scheme, c.Endpoint, c.Region, c.Bucket, c.AccessKey, c.SecretKey}, "\x00")
}
