package storage

import (
	"fmt"
	"strings"
)

const defaultPagePrefix = "legal"

// PageObjectPath composes the object key for a markdown page, e.g. legal/en/privacy-policy.md.
func PageObjectPath(prefix, lang, slug string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPagePrefix
	}
	lang, err := validateSegment("lang", lang)
	if err != nil {
		return "", err
	}
	slug, err = validateSegment("slug", slug)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(slug + ".md")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", prefix, lang, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
