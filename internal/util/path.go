package util

import (
	"path"
	"strings"
	"time"
)

// StampFormat is the UTC timestamp layout used in object keys.
const StampFormat = "20060102T150405Z"

// BuildObjectKey constructs a normalized object key.
func BuildObjectKey(prefix, kind string, when time.Time, extension string) string {
	name := when.UTC().Format(StampFormat)
	if extension != "" {
		name = name + "." + strings.TrimPrefix(extension, ".")
	}
	return path.Join(BuildPrefix(prefix, kind), name)
}

// BuildPrefix builds the prefix for listing objects of one kind.
func BuildPrefix(prefix, kind string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if kind != "" {
		parts = append(parts, kind)
	}
	return path.Join(parts...)
}

// StampOf parses the timestamp at the start of an object key's base name.
func StampOf(key string) (time.Time, bool) {
	base := path.Base(key)
	if len(base) < len(StampFormat) {
		return time.Time{}, false
	}
	when, err := time.Parse(StampFormat, base[:len(StampFormat)])
	if err != nil {
		return time.Time{}, false
	}
	return when, true
}
