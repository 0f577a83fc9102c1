package transform

import (
	"strings"

	"golang.org/x/net/html"
)

const maxTitleLength = 200

// extractTitle returns the trimmed <title> text, capped at 200 runes.
func extractTitle(root *html.Node) string {
	head := findElement(root, "head")
	if head == nil {
		return ""
	}
	title := findElementInParent(head, "title")
	if title == nil {
		return ""
	}
	text := strings.TrimSpace(getTextContent(title))

	runes := []rune(text)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return text
}

// metadataNames are the <meta name=…> entries carried into the reply.
var metadataNames = map[string]string{
	"description": "description",
	"author":      "author",
	"keywords":    "keywords",
}

// metadataProperties are the <meta property=…> entries carried into the
// reply, keyed by their reply field name.
var metadataProperties = map[string]string{
	"og:title":       "og_title",
	"og:description": "og_description",
	"og:site_name":   "og_site_name",
	"og:type":        "og_type",
	"article:author": "article_author",
}

// extractMetadata collects document metadata: selected meta tags, the
// canonical link and the document language.
func extractMetadata(root *html.Node) map[string]string {
	metadata := make(map[string]string)

	if htmlNode := findElement(root, "html"); htmlNode != nil {
		if lang := strings.TrimSpace(getAttr(htmlNode, "lang")); lang != "" {
			metadata["lang"] = lang
		}
	}

	head := findElement(root, "head")
	if head == nil {
		return metadata
	}

	for _, meta := range findAllElementsInParent(head, "meta") {
		content := strings.TrimSpace(getAttr(meta, "content"))
		if content == "" {
			continue
		}
		if key, ok := metadataNames[strings.ToLower(getAttr(meta, "name"))]; ok {
			if _, seen := metadata[key]; !seen {
				metadata[key] = content
			}
			continue
		}
		if key, ok := metadataProperties[strings.ToLower(getAttr(meta, "property"))]; ok {
			if _, seen := metadata[key]; !seen {
				metadata[key] = content
			}
		}
	}

	for _, link := range findAllElementsInParent(head, "link") {
		if strings.ToLower(getAttr(link, "rel")) == "canonical" {
			if href := strings.TrimSpace(getAttr(link, "href")); href != "" {
				metadata["canonical"] = href
			}
			break
		}
	}

	return metadata
}
