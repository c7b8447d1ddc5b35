package backend

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// HashLength is the length of a hex-encoded sha256 digest.
const HashLength = 64

const octetStream = "application/octet-stream"

// ValidateHash checks that hash is 64 lowercase hex characters.
func ValidateHash(hash string) error {
	if len(hash) != HashLength {
		return fmt.Errorf("%q: %w", hash, ErrInvalidHash)
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%q: %w", hash, ErrInvalidHash)
		}
	}
	return nil
}

// ObjectName returns the storage name for a blob: the hash followed by the
// extension for mimeType, if one is known.
func ObjectName(hash, mimeType string) string {
	return hash + ExtensionFor(mimeType)
}

// ExtensionFor returns the canonical file extension (with leading dot) for
// mimeType, or "" when mimeType is empty, generic or unknown.
func ExtensionFor(mimeType string) string {
	t := baseType(mimeType)
	if t == "" || t == octetStream {
		return ""
	}
	if m := mimetype.Lookup(t); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if exts, err := mime.ExtensionsByType(t); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// commonTypes seeds typesByExtension. Where two types share an extension
// the earlier one wins.
var commonTypes = []string{
	"image/png", "image/jpeg", "image/gif", "image/webp", "image/avif",
	"image/heic", "image/heif", "image/svg+xml", "image/bmp", "image/tiff",
	"video/mp4", "video/webm", "video/quicktime", "video/x-matroska",
	"audio/mpeg", "audio/ogg", "audio/wav", "audio/flac", "audio/aac",
	"text/plain", "text/html", "text/css", "text/csv",
	"application/json", "application/pdf", "application/zip", "application/gzip",
	"application/x-tar", "application/wasm",
}

// typesByExtension maps the extensions ExtensionFor produces back to their
// types, independent of the host's mime.types files.
var typesByExtension = func() map[string]string {
	m := make(map[string]string, len(commonTypes))
	for _, t := range commonTypes {
		ext := ExtensionFor(t)
		if ext == "" {
			continue
		}
		if _, ok := m[ext]; !ok {
			m[ext] = t
		}
	}
	return m
}()

// TypeFromName derives a MIME type from an object name's extension, or ""
// when the name has no known extension.
func TypeFromName(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	ext := strings.ToLower(name[i:])
	if t, ok := typesByExtension[ext]; ok {
		return t
	}
	return baseType(mime.TypeByExtension(ext))
}

// HashFromName extracts the content hash from an object name of the form
// hash or hash.ext. It returns "" for names that do not follow that form.
func HashFromName(name string) string {
	if len(name) < HashLength {
		return ""
	}
	if len(name) > HashLength && name[HashLength] != '.' {
		return ""
	}
	hash := name[:HashLength]
	if ValidateHash(hash) != nil {
		return ""
	}
	return hash
}

// baseType strips parameters such as "; charset=utf-8" from a MIME type.
func baseType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	t, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return t
}
