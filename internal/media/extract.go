// Package media turns raw tool results into canonical media references and
// keeps the append-only gallery of produced artifacts.
package media

import (
	"bytes"
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/crystaldolphin/canvasagent/internal/mcp"
)

// Type is the kind of artifact a reference points at.
type Type string

const (
	Image Type = "image"
	Video Type = "video"
)

// Reference is the canonical media reference derived from one tool result.
type Reference struct {
	// MediaURL is displayable: a network URL or a data URI.
	MediaURL string `json:"mediaUrl"`
	// OriginURL is set only for network URLs.
	OriginURL        string          `json:"originUrl,omitempty"`
	StructuredPrompt json.RawMessage `json:"structuredPrompt,omitempty"`
	MediaType        Type            `json:"mediaType"`
}

// ThreadURL is the value fed into the next generation context. The origin
// URL is preferred; the data URI is only a fallback.
func (r Reference) ThreadURL() string {
	if r.OriginURL != "" {
		return r.OriginURL
	}
	return r.MediaURL
}

func (r Reference) Empty() bool { return r.MediaURL == "" }

// The remote service's casing of this phrase is not stable.
var rePreviewURL = regexp.MustCompile(`(?i)for\s+full\s+(?:image\s+|video\s+|resolution\s+)?preview\s+use\s*:?\s*(https?://[^\s"'<>()\[\]]+)`)

// Keys that mark a JSON text item as structured prompt metadata.
var structuredPromptKeys = []string{
	"structured_prompt",
	"short_description",
	"objects",
	"background_setting",
	"lighting",
	"aesthetics",
	"photographic_characteristics",
	"style_medium",
	"artistic_style",
	"context",
	"text_render",
}

var videoExts = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".m4v": true}

// PreviewURL returns the URL following the preview phrase in text, matched
// case-insensitively.
func PreviewURL(text string) (string, bool) {
	m := rePreviewURL.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimRight(m[1], ".,;:!?"), true
}

// StructuredPrompt returns text as metadata when it parses whole as a JSON
// object carrying at least one recognized descriptive key. A nested
// "structured_prompt" value is unwrapped.
func StructuredPrompt(text string) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	if inner, ok := obj["structured_prompt"]; ok {
		// Some tools return the metadata as a JSON-encoded string.
		var s string
		if err := json.Unmarshal(inner, &s); err == nil {
			if json.Valid([]byte(s)) {
				return json.RawMessage(s), true
			}
			return nil, false
		}
		return inner, true
	}
	for _, k := range structuredPromptKeys {
		if _, ok := obj[k]; ok {
			return json.RawMessage(trimmed), true
		}
	}
	return nil, false
}

// Extract derives the canonical reference from res. It reports false when
// the result carries neither a media URL nor an inline payload.
func Extract(res mcp.ToolResult) (Reference, bool) {
	var ref Reference

	for _, item := range res.Content {
		if item.Type != "text" || item.Text == "" {
			continue
		}
		if ref.OriginURL == "" {
			if u, ok := PreviewURL(item.Text); ok {
				ref.OriginURL = u
			}
		}
		if ref.StructuredPrompt == nil {
			if sp, ok := StructuredPrompt(item.Text); ok {
				ref.StructuredPrompt = sp
			}
		}
	}

	item, found := firstMediaItem(res.Content)
	if found {
		ref.MediaType = itemType(item)
		if ref.OriginURL == "" && isNetworkURL(item.URI) {
			ref.OriginURL = item.URI
		}
	}

	switch {
	case ref.OriginURL != "":
		ref.MediaURL = ref.OriginURL
	case found && item.Data != "":
		ref.MediaURL = dataURI(item)
	default:
		return Reference{}, false
	}
	if ref.MediaType == "" {
		ref.MediaType = typeFromURL(ref.OriginURL)
	}
	return ref, true
}

func firstMediaItem(items []mcp.ContentItem) (mcp.ContentItem, bool) {
	for _, it := range items {
		if itemType(it) != "" {
			return it, true
		}
	}
	return mcp.ContentItem{}, false
}

func itemType(it mcp.ContentItem) Type {
	mime := strings.ToLower(it.MimeType)
	switch {
	case it.Type == "image", strings.HasPrefix(mime, "image/"):
		return Image
	case it.Type == "video", strings.HasPrefix(mime, "video/"):
		return Video
	}
	return ""
}

func dataURI(it mcp.ContentItem) string {
	if strings.HasPrefix(it.Data, "data:") {
		return it.Data
	}
	mime := it.MimeType
	if mime == "" {
		mime = "image/png"
		if it.Type == "video" {
			mime = "video/mp4"
		}
	}
	return "data:" + mime + ";base64," + it.Data
}

func isNetworkURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func typeFromURL(raw string) Type {
	u, err := url.Parse(raw)
	if err != nil {
		return Image
	}
	if videoExts[strings.ToLower(path.Ext(u.Path))] {
		return Video
	}
	return Image
}
