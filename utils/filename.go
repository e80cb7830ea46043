package utils

import "regexp"

var unsafeFileNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9.-] with an underscore
func SanitizeFileName(name string) string {
	if name == "" {
		return "file"
	}
	return unsafeFileNameChars.ReplaceAllString(name, "_")
}
