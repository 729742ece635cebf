package content

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	pagePolicy = newPagePolicy()
)

type frontMatter struct {
	Title         string `yaml:"title"`
	Summary       string `yaml:"summary"`
	Lang          string `yaml:"lang"`
	EffectiveDate string `yaml:"effective_date"`
	UpdatedAt     string `yaml:"updated_at"`
	Version       string `yaml:"version"`
}

func newPagePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("table", "p", "span")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func render(slug, lang string, raw RawPage) (Page, error) {
	fm, body := splitFrontMatter(string(raw.Data))
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, fmt.Errorf("content: parse front matter %s/%s: %w", lang, slug, err)
		}
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return Page{}, fmt.Errorf("content: render %s/%s: %w", lang, slug, err)
	}

	page := Page{
		Slug:          slug,
		Lang:          firstNonEmpty(strings.TrimSpace(front.Lang), lang),
		Title:         strings.TrimSpace(front.Title),
		Summary:       strings.TrimSpace(front.Summary),
		HTML:          strings.TrimSpace(pagePolicy.Sanitize(buf.String())),
		Version:       strings.TrimSpace(front.Version),
		EffectiveDate: parseDate(front.EffectiveDate),
		UpdatedAt:     parseDate(front.UpdatedAt),
	}
	if page.UpdatedAt.IsZero() {
		page.UpdatedAt = raw.ModifiedAt
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	return page, nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n")
		}
	}
	return "", input
}

func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	parts := strings.Split(strings.TrimSpace(slug), "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
