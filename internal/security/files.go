package security

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	// MaxFileSize caps a single generated file.
	MaxFileSize = 1 << 20
	// MaxTotalSize caps the whole generated file set.
	MaxTotalSize = 5 << 20
)

var (
	// ErrDisallowedExtension rejects files outside the publishing allow-list.
	ErrDisallowedExtension = errors.New("disallowed file extension")
	// ErrFileTooLarge rejects a file above MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
	// ErrTotalTooLarge rejects a file set above MaxTotalSize.
	ErrTotalTooLarge = errors.New("files too large")
	// ErrSecretFound rejects content that looks like it embeds a credential.
	ErrSecretFound = errors.New("potential secret found")
	// ErrUnsafePath rejects absolute or parent-escaping paths.
	ErrUnsafePath = errors.New("unsafe file path")
)

var allowedExtensions = map[string]bool{
	".html": true, ".css": true, ".js": true, ".json": true, ".md": true, ".txt": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".csv": true,
}

// extension-less files the publisher always writes
var allowedBareNames = map[string]bool{"LICENSE": true}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[=:]\s*["']?[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)secret[_-]?key\s*[=:]\s*["']?[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)password\s*[=:]\s*["']?[^\s"']{8,}`),
	regexp.MustCompile(`(?i)token\s*[=:]\s*["']?[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)github[_-]?token\s*[=:]\s*["']?ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)openai[_-]?key\s*[=:]\s*["']?sk-[a-zA-Z0-9]{48}`),
	regexp.MustCompile(`\bghp_[a-zA-Z0-9]{36}\b`),
}

// AllowedExtension reports whether name may be published.
func AllowedExtension(name string) bool {
	base := path.Base(name)
	if allowedBareNames[base] {
		return true
	}
	return allowedExtensions[strings.ToLower(path.Ext(base))]
}

// ScanForSecrets returns a short, truncated preview of every credential-looking match.
func ScanForSecrets(content string) []string {
	var findings []string
	for _, pattern := range secretPatterns {
		for _, match := range pattern.FindAllString(content, -1) {
			if len(match) > 20 {
				match = match[:20]
			}
			findings = append(findings, match+"...")
		}
	}
	return findings
}

// Redact replaces credential-looking matches with [REDACTED].
func Redact(content string) string {
	for _, pattern := range secretPatterns {
		content = pattern.ReplaceAllString(content, "[REDACTED]")
	}
	return content
}

// ValidateFiles checks paths, extensions, sizes and text content of a file set
// about to be published.
func ValidateFiles(files map[string][]byte) error {
	total := 0
	for name, content := range files {
		clean := path.Clean(name)
		if name == "" || path.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
		if !AllowedExtension(name) {
			return fmt.Errorf("%w: %s", ErrDisallowedExtension, path.Ext(name))
		}
		if len(content) > MaxFileSize {
			return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, name, len(content))
		}
		total += len(content)

		if findings := ScanForSecrets(string(content)); len(findings) > 0 {
			return fmt.Errorf("%w in %s: %s", ErrSecretFound, name, findings[0])
		}
	}
	if total > MaxTotalSize {
		return fmt.Errorf("%w: %d bytes", ErrTotalTooLarge, total)
	}
	return nil
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// SanitizeString drops control characters (keeping tabs and newlines) and truncates to
// maxLength runes.
func SanitizeString(text string, maxLength int) string {
	text = controlChars.ReplaceAllString(text, "")
	if runes := []rune(text); maxLength > 0 && len(runes) > maxLength {
		text = string(runes[:maxLength])
	}
	return strings.TrimSpace(text)
}
