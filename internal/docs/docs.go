// Package docs collates the static markdown documentation directories
// into renderable pages. Everything degrades to an empty list: a missing
// directory, an unreadable file or a markdown conversion failure never
// surfaces as an error to the viewer.
package docs

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
)

// Doc is one collated document.
type Doc struct {
	FileName string
	Title    string
	Slug     string
	Content  template.HTML
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Load reads every .md file in dir, sorted case-insensitively by title.
func Load(dir string) []Doc {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []Doc{}
	}

	var out []Doc
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		var buf bytes.Buffer
		if err := goldmark.Convert(bytes.TrimSpace(raw), &buf); err != nil {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		out = append(out, Doc{
			FileName: entry.Name(),
			Title:    TitleCase(strings.ReplaceAll(base, "_", " ")),
			Slug:     Slugify(base),
			Content:  template.HTML(buf.String()),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out
}

// TitleCase capitalizes the first letter of each space-separated word and
// lowercases the rest.
func TitleCase(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Slugify lowercases text and collapses every run of non-alphanumeric
// characters into a single dash, trimming dashes at both ends.
func Slugify(text string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(s, "-")
}
