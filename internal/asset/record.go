// Package asset holds the record type shared by the metadata index and the
// storage drivers, together with the naming rules for short ids, storage
// keys and public paths.
package asset

import (
	"path"
	"strings"
	"time"
)

// Record describes one stored asset as kept in a driver's metadata index.
type Record struct {
	// StorageKey is the opaque backend identifier (object key, file id, …).
	StorageKey string `json:"storageKey"`

	// ShortID is the public URL-safe alias, unique within one driver.
	ShortID string `json:"shortId"`

	// DisplayName is the human-readable original name.
	DisplayName string `json:"displayName"`

	// SizeBytes is the stored payload size.
	SizeBytes int64 `json:"sizeBytes"`

	// CreatedAt is when the asset was indexed, serialized as RFC 3339.
	CreatedAt time.Time `json:"createdAt"`

	// DriverName is the driver variant that produced the record.
	DriverName string `json:"driverName"`
}

// Ext returns the file extension used in the record's public path.
// The storage key wins over the display name; fallback is used when neither
// carries one.
func (r Record) Ext(fallback string) string {
	if ext := path.Ext(r.StorageKey); isPlainExt(ext) {
		return ext
	}
	if ext := path.Ext(r.DisplayName); isPlainExt(ext) {
		return ext
	}
	return fallback
}

// PublicPath builds "/<scheme>/<shortId><ext>".
func PublicPath(scheme, shortID, ext string) string {
	return "/" + scheme + "/" + shortID + ext
}

// SplitPublicName splits the last path element of a public path
// ("ab12cd34.png") into its short id and extension.
func SplitPublicName(name string) (shortID, ext string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// TotalSize sums SizeBytes over records.
func TotalSize(records []Record) int64 {
	var total int64
	for _, r := range records {
		total += r.SizeBytes
	}
	return total
}

// isPlainExt rejects extensions that would break the public path, such as
// ones containing separators or that are absurdly long.
func isPlainExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, c := range ext[1:] {
		if !isAlnum(c) {
			return false
		}
	}
	return true
}
