package apidoc

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// SanitizePath removes double slashes and trailing slashes from a path.
func SanitizePath(path string) string {
	cleanPath := path
	for strings.Contains(cleanPath, "//") {
		cleanPath = strings.ReplaceAll(cleanPath, "//", "/")
	}

	cleanPath = strings.TrimSuffix(cleanPath, "/")
	if cleanPath == "" {
		cleanPath = "/"
	}

	return cleanPath
}

// ExtractParamNames returns the {param} names in a path or topic segment.
// A chi regex suffix ({id:[0-9]+}) is stripped.
func ExtractParamNames(path string) ([]string, error) {
	if strings.Count(path, "{") != strings.Count(path, "}") {
		return nil, errors.New("mismatched number of '{' and '}' in path")
	}

	names := []string{}
	start := -1

	for i, ch := range path {
		switch {
		case ch == '{':
			start = i + 1
		case ch == '}' && start >= 0:
			name, _, _ := strings.Cut(path[start:i], ":")
			if name != "" {
				names = append(names, name)
			}
			start = -1
		}
	}

	return names, nil
}

// IsValidParameterName reports whether name starts with an ASCII letter and
// continues with letters, digits or underscores.
func IsValidParameterName(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		if i == 0 {
			if !isASCIILetter(r) {
				return false
			}

			continue
		}

		if !isASCIILetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// validateOperationID checks that an operationID contains only a-z and A-Z.
func validateOperationID(operationID string) error {
	if operationID == "" {
		return errors.New("operationID cannot be empty")
	}

	for _, r := range operationID {
		if !isASCIILetter(r) {
			return fmt.Errorf("operationID %q contains invalid characters (only characters a-z, A-Z are allowed)", operationID)
		}
	}

	return nil
}
