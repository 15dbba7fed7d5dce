package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log records.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked in every record written through Setup, whichever
// helper built the attribute. Keys are compared lower-cased.
var sensitiveKeys = map[string]struct{}{
	"deliveryinfo":  {},
	"authorization": {},
	"signature":     {},
	"passphrase":    {},
	"secret":        {},
	"token":         {},
}

// clearKeys are ledger identifiers MaskField leaves readable.
var clearKeys = map[string]struct{}{
	"method":     {},
	"reason":     {},
	"orderid":    {},
	"height":     {},
	"chainid":    {},
	"invocation": {},
	"buyer":      {},
	"owner":      {},
	"asset":      {},
}

func lookupKey(set map[string]struct{}, key string) bool {
	_, ok := set[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// IsSensitive reports whether values logged under key are always masked.
func IsSensitive(key string) bool { return lookupKey(sensitiveKeys, key) }

// IsAllowlisted reports whether MaskField leaves key readable.
func IsAllowlisted(key string) bool {
	return !IsSensitive(key) && lookupKey(clearKeys, key)
}

// MaskValue returns the placeholder for non-blank values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField masks value unless key is a ledger identifier.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	case slog.KindGroup:
		return attr
	default:
		return slog.String(attr.Key, RedactedValue)
	}
}
