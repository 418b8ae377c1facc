package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Fingerprint(t *testing.T) {
	a := NewConfig("acc.r2.cloudflarestorage.com", "images", "AKID", "secret")
	b := NewConfig("acc.r2.cloudflarestorage.com", "images", "AKID", "secret")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.SecretKey = "rotated"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := NewConfig("acc.r2.cloudflarestorage.com", "images", "AKID", "secret")
	c.Insecure = true
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, NewConfig("e", "b", "k", "s").Validate())
	assert.Error(t, NewConfig("", "b", "k", "s").Validate())
	assert.Error(t, NewConfig("e", "", "k", "s").Validate())
	assert.Error(t, NewConfig("e", "b", "k", "").Validate())
}
