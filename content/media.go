package content

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Mime type defaults applied when a fragment omits mimeType.
const (
	DefaultImageMimeType = "image/png"
	DefaultAudioMimeType = "audio/wav"
	DefaultBlobMimeType  = "application/octet-stream"
)

var mimeExtensions = map[string]string{
	// Images
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	// Audio
	"audio/wav":  "wav",
	"audio/mpeg": "mp3",
	"audio/mp3":  "mp3",
	"audio/ogg":  "ogg",
	"audio/webm": "webm",
	"audio/flac": "flac",
}

// ExtensionFor returns the file extension for a mime type. Unknown types
// fall back to the mime subtype, and to "bin" when there is none.
func ExtensionFor(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	if i := strings.IndexByte(mimeType, '/'); i >= 0 && i < len(mimeType)-1 {
		return mimeType[i+1:]
	}
	return "bin"
}

// DecodeBase64 decodes standard base64, accepting input with or without padding.
func DecodeBase64(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return []byte{}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("invalid base64 payload: %w", err)
}

func bytesOrEmpty(data string) []byte {
	decoded, err := DecodeBase64(data)
	if err != nil {
		return []byte{}
	}
	return decoded
}
