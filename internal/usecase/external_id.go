package usecase

import (
	"strings"

	"github.com/google/uuid"
)

const (
	defaultBaseName = "photo"
	// ExternalImageId в Rekognition ограничен 255 символами.
	maxBaseLen      = 128
	maxExtensionLen = 16
)

// SanitizeKeyPart заменяет каждый символ вне [A-Za-z0-9_.-] на '_'.
func SanitizeKeyPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}

// fileExtension возвращает часть имени после последней точки, либо "".
func fileExtension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return filename[idx+1:]
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// NewExternalImageID строит уникальный ключ фото: очищенное имя файла,
// случайный UUID и исходное расширение, например "A.jpg-<uuid>.jpg".
// Уникальность обеспечивается UUID, а не координацией между запросами.
func NewExternalImageID(filename string) string {
	return buildExternalImageID(filename, uuid.NewString())
}

func buildExternalImageID(filename, suffix string) string {
	base := truncate(SanitizeKeyPart(strings.TrimSpace(filename)), maxBaseLen)
	if base == "" {
		base = defaultBaseName
	}

	ext := truncate(SanitizeKeyPart(fileExtension(strings.TrimSpace(filename))), maxExtensionLen)
	if ext == "" {
		return base + "-" + suffix
	}
	return base + "-" + suffix + "." + ext
}
