package logger

import (
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Image payloads are base64 and flood the console; the rest are secrets.
// payloadKeys are redacted only when they carry data, so counts stay visible.
var (
	payloadKeys    = []string{"images"}
	redactKeys     = []string{"api_key", "authorization", "bearer", "password", "secret", "token"}
	redactSuffixes = []string{"_key", "_password", "_secret", "_token"}
	redactValues   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*|\b(api[_-]?key|access[_-]?token|secret)\b\s*[:=]\s*\S+`)
)

// RedactAttr is a slog.ReplaceAttr hook. Raw byte slices are reduced to
// their length.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if secretKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if isPayload(a) {
		return slog.String(a.Key, redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if redactValues.MatchString(a.Value.String()) {
			return slog.String(a.Key, redacted)
		}
	case slog.KindAny:
		if b, ok := a.Value.Any().([]byte); ok {
			return slog.Int(a.Key+"_bytes", len(b))
		}
	}
	return a
}

func isPayload(a slog.Attr) bool {
	kind := a.Value.Kind()
	if kind != slog.KindString && kind != slog.KindAny {
		return false
	}
	key := strings.ToLower(a.Key)
	for _, k := range payloadKeys {
		if key == k {
			return true
		}
	}
	return false
}

func secretKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range redactKeys {
		if key == k {
			return true
		}
	}
	for _, s := range redactSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}
