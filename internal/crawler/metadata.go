package crawler

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is the structured metadata of a fetched page, pulled from
// OpenGraph tags, standard meta tags and JSON-LD blocks.
type PageMeta struct {
	OGTitle     string
	Description string
	Author      string
	Published   string
	SiteName    string
	Canonical   string
	Image       string
}

// ExtractPageMeta extracts page metadata from a parsed document
func ExtractPageMeta(sel *goquery.Selection, pageURL string) PageMeta {
	meta := PageMeta{}

	meta.OGTitle = metaContent(sel, "meta[property='og:title']")
	meta.SiteName = metaContent(sel, "meta[property='og:site_name']")
	meta.Image = metaContent(sel, "meta[property='og:image']")

	// Description: standard meta first, OpenGraph as fallback
	meta.Description = metaContent(sel, "meta[name='description']")
	if meta.Description == "" {
		meta.Description = metaContent(sel, "meta[property='og:description']")
	}

	meta.Author = metaContent(sel, "meta[name='author']")
	meta.Published = metaContent(sel, "meta[property='article:published_time']")
	if meta.Published == "" {
		meta.Published = metaContent(sel, "meta[name='date']")
	}

	if href, exists := sel.Find("link[rel='canonical']").First().Attr("href"); exists {
		meta.Canonical = resolveURL(pageURL, strings.TrimSpace(href))
	}

	// JSON-LD structured data fills whatever the meta tags left blank
	sel.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}

		if meta.Description == "" {
			if desc, ok := data["description"].(string); ok {
				meta.Description = desc
			}
		}
		if meta.Author == "" {
			if author, ok := extractAuthorFromJSON(data); ok {
				meta.Author = author
			}
		}
		if meta.Published == "" {
			if published, ok := data["datePublished"].(string); ok {
				meta.Published = published
			}
		}
		if meta.OGTitle == "" {
			if headline, ok := data["headline"].(string); ok {
				meta.OGTitle = headline
			}
		}
	})

	meta.OGTitle = strings.TrimSpace(meta.OGTitle)
	meta.Description = strings.TrimSpace(meta.Description)
	meta.Author = strings.TrimSpace(meta.Author)
	meta.Published = strings.TrimSpace(meta.Published)
	meta.SiteName = strings.TrimSpace(meta.SiteName)

	return meta
}

// ToMap flattens the metadata for storage on the item record, omitting
// empty fields.
func (m PageMeta) ToMap() map[string]string {
	out := make(map[string]string)
	put := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	put("description", m.Description)
	put("author", m.Author)
	put("published", m.Published)
	put("site_name", m.SiteName)
	put("canonical", m.Canonical)
	put("image", m.Image)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Helper functions

func metaContent(sel *goquery.Selection, selector string) string {
	content, _ := sel.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func extractAuthorFromJSON(data map[string]interface{}) (string, bool) {
	switch author := data["author"].(type) {
	case string:
		return author, true
	case map[string]interface{}:
		if name, ok := author["name"].(string); ok {
			return name, true
		}
	case []interface{}:
		for _, entry := range author {
			if obj, ok := entry.(map[string]interface{}); ok {
				if name, ok := obj["name"].(string); ok {
					return name, true
				}
			}
		}
	}
	return "", false
}

func resolveURL(baseURL, relativeURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return relativeURL
	}
	ref, err := url.Parse(relativeURL)
	if err != nil {
		return relativeURL
	}
	return base.ResolveReference(ref).String()
}
