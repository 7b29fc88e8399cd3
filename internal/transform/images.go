package transform

import "strings"

// ToDataURL returns s as a URL the upstream accepts. http(s) and data URLs
// pass through; bare base64 is wrapped in a data URL whose media type is
// sniffed from the leading bytes.
func ToDataURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "data:") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "data:" + sniffImageType(s) + ";base64," + s
}

func sniffImageType(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(b64, "iVBORw0KGgo"):
		return "image/png"
	case strings.HasPrefix(b64, "R0lGOD"):
		return "image/gif"
	default:
		return "image/png"
	}
}
