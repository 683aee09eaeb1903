package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugify нормализует отображаемое имя в URL-безопасный слаг:
// нижний регистр, буквы и цифры сохраняются, остальное сворачивается в дефисы
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // не начинаем с дефиса
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "item"
	}
	return slug
}

// SlugCandidate возвращает n-й кандидат для базового слага: base, base-1, base-2, ...
func SlugCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}
