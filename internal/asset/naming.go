package asset

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShortIDLength is the fixed length of every short id.
const ShortIDLength = 8

const shortIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// maxShortIDAttempts bounds collision retries in UniqueShortID. With 36^8
// possible ids a second attempt is already rare.
const maxShortIDAttempts = 16

var (
	shortIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{8}$`)

	// <millis>_<12 hex>[_<stem>]<ext>
	storageKeyPattern = regexp.MustCompile(`^\d{10,}_[0-9a-f]{12}(?:_(.+))?$`)

	unsafeStemChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// IsShortID reports whether s has the shape of a short id.
func IsShortID(s string) bool {
	return shortIDPattern.MatchString(s)
}

// NewShortID returns a random short id drawn from [0-9a-z] using crypto/rand.
func NewShortID() string {
	b := make([]byte, ShortIDLength)
	max := big.NewInt(int64(len(shortIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(fmt.Sprintf("asset: reading random bytes: %v", err))
		}
		b[i] = shortIDAlphabet[n.Int64()]
	}
	return string(b)
}

// UniqueShortID returns candidate when it is a valid short id not reported as
// taken, otherwise a fresh random id that is not taken either.
func UniqueShortID(candidate string, taken func(string) bool) (string, error) {
	if IsShortID(candidate) && !taken(candidate) {
		return candidate, nil
	}
	for i := 0; i < maxShortIDAttempts; i++ {
		id := NewShortID()
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique short id after %d attempts", maxShortIDAttempts)
}

// TakenSet builds a lookup over the short ids already present in records.
func TakenSet(records []Record) func(string) bool {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.ShortID] = struct{}{}
	}
	return func(id string) bool {
		_, ok := seen[id]
		return ok
	}
}

// NewStorageKey generates a collision-resistant backend key for an upload:
// "<unix millis>_<12 hex chars>[_<sanitized stem>]<ext>".
func NewStorageKey(originalName string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	ext := path.Ext(originalName)
	if !isPlainExt(ext) {
		ext = ""
	}
	stem := strings.TrimSuffix(path.Base(filepathToSlash(originalName)), path.Ext(originalName))
	stem = strings.Trim(unsafeStemChars.ReplaceAllString(stem, "-"), "-.")
	if len(stem) > 64 {
		stem = stem[:64]
	}

	key := fmt.Sprintf("%d_%s", now.UnixMilli(), token)
	if stem != "" && stem != "." {
		key += "_" + stem
	}
	return key + strings.ToLower(ext)
}

// DisplayNameFromKey reverses the NewStorageKey convention as far as it can:
// the timestamp and random token are stripped, leaving the original stem and
// extension. Keys that do not follow the convention yield their base name.
func DisplayNameFromKey(key string) string {
	base := path.Base(key)
	ext := path.Ext(base)
	m := storageKeyPattern.FindStringSubmatch(strings.TrimSuffix(base, ext))
	if m == nil {
		return base
	}
	if m[1] == "" {
		return base
	}
	return m[1] + ext
}

func filepathToSlash(name string) string {
	return strings.ReplaceAll(name, `\`, "/")
}

func isAlnum(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
