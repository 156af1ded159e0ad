package media

import (
	"errors"
	"mime"
	"net/http"
)

// ErrUnsupportedType is returned for media outside the allowed types.
var ErrUnsupportedType = errors.New("unsupported media type")

// allowedTypes maps every accepted media type to its stored file extension.
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"application/pdf": ".pdf",
}

// Allowed reports whether contentType (parameters ignored) may be stored.
func Allowed(contentType string) bool {
	_, ok := allowedTypes[baseType(contentType)]
	return ok
}

// DetectType returns the media type of data. The sniffed signature wins
// over declared; declared is used only when the bytes carry no known
// signature.
func DetectType(data []byte, declared string) string {
	switch sniffed := baseType(http.DetectContentType(data)); sniffed {
	case "application/octet-stream":
		return baseType(declared)
	case "application/ogg":
		return "audio/ogg"
	default:
		return sniffed
	}
}

func baseType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}
