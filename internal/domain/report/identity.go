// Package report defines the extraction record produced for each observed
// radiology document and its identity across repeated observations.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Identity is the stable key of one logical document observation: the
// source path plus the sha256 fingerprint of its content. Two events with
// the same Identity carry the same bytes; a content change at the same
// path yields a new Identity that supersedes the old one in the index.
type Identity struct {
	Path        string
	Fingerprint string
}

// NewIdentity fingerprints content for the given source path.
func NewIdentity(path string, content []byte) Identity {
	sum := sha256.Sum256(content)
	return Identity{
		Path:        path,
		Fingerprint: hex.EncodeToString(sum[:]),
	}
}

// Key returns the storage key fragment for the logical document. It is
// derived from the path only, so successive versions of the same file
// share one index slot.
func (id Identity) Key() string {
	name := filepath.Base(id.Path)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	// Short path hash guards against basename collisions across directories.
	sum := sha256.Sum256([]byte(id.Path))
	return fmt.Sprintf("%s-%s", b.String(), hex.EncodeToString(sum[:4]))
}

// ShortFingerprint returns the first 12 hex chars of the fingerprint for logging.
func (id Identity) ShortFingerprint() string {
	if len(id.Fingerprint) < 12 {
		return id.Fingerprint
	}
	return id.Fingerprint[:12]
}

// String renders path@fingerprint for logs and alert payloads.
func (id Identity) String() string {
	return id.Path + "@" + id.ShortFingerprint()
}
