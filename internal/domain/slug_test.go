package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name     string
		expected string
	}{
		{"Quarterly Report", "quarterly-report"},
		{"  Project  X  ", "project-x"},
		{"report_2024 (final).pdf", "report-2024-final-pdf"},
		{"Отчёт за квартал", "отчёт-за-квартал"},
		{"---", "item"},
		{"", "item"},
		{"a", "a"},
		{"!!!v2!!!", "v2"},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, Slugify(c.name), "input %q", c.name)
	}
}

func TestSlugCandidate(t *testing.T) {
	assert.Equal(t, "report", SlugCandidate("report", 0))
	assert.Equal(t, "report-1", SlugCandidate("report", 1))
	assert.Equal(t, "report-17", SlugCandidate("report", 17))
}

func TestIsVideoURL(t *testing.T) {
	domains := []string{"youtube.com", "youtu.be", "vimeo.com"}

	url := "https://www.youtube.com/watch?v=abc123"
	link := &Item{Type: ItemTypeLink, ExternalURL: &url}
	assert.True(t, link.IsVideoURL(domains))

	plain := "https://example.com/page"
	link2 := &Item{Type: ItemTypeLink, ExternalURL: &plain}
	assert.False(t, link2.IsVideoURL(domains))

	folder := &Item{Type: ItemTypeFolder}
	assert.False(t, folder.IsVideoURL(domains))
}
