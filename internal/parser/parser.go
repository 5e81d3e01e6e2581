// Package parser turns raw vault documents into normalized records:
// frontmatter metadata, body, lowercase tags, and cleaned wikilink targets.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
	tagRe      = regexp.MustCompile(`(?m)(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	fencedRe   = regexp.MustCompile("(?ms)^`{3,}[^\n]*\n.*?^`{3,}")
	fmCloseRe  = regexp.MustCompile(`(?m)^---\r?$`)
)

// embedExts lists wikilink target extensions that reference media embeds
// rather than documents. Links to these never become graph edges.
var embedExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".bmp": {}, ".pdf": {}, ".mp3": {}, ".mp4": {},
	".wav": {}, ".ogg": {}, ".webm": {}, ".mov": {},
}

// Result holds the normalized output of parsing one vault document.
type Result struct {
	Title    string
	Metadata map[string]any
	Body     string
	Links    []string
	Tags     []string
}

// Parse extracts metadata, body, wikilinks, and tags from raw document bytes.
// relPath is the corpus-relative path; the title is its filename stem.
// A malformed frontmatter block degrades to raw content with empty metadata.
func Parse(relPath string, data []byte) *Result {
	meta, body := splitFrontmatter(data)

	// Fenced code blocks are invisible to both link and tag extraction.
	stripped := fencedRe.ReplaceAllString(body, "")

	return &Result{
		Title:    TitleFromPath(relPath),
		Metadata: meta,
		Body:     body,
		Links:    extractLinks(stripped),
		Tags:     extractTags(stripped, meta),
	}
}

// TitleFromPath returns the filename stem of a corpus-relative path.
func TitleFromPath(relPath string) string {
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// splitFrontmatter separates a YAML frontmatter block (between leading ---
// delimiters) from the body. Missing or invalid frontmatter yields the whole
// content as body with nil metadata.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	// The closing delimiter must be a whole --- line, so a YAML value like
	// "----" or "---text" cannot terminate the block early.
	loc := fmCloseRe.FindIndex(rest)
	if loc == nil {
		return nil, string(data)
	}

	yamlBlock := rest[:loc[0]]
	afterDelim := rest[loc[1]:]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var meta map[string]any
	if err := yaml.Unmarshal(yamlBlock, &meta); err != nil {
		return nil, string(data)
	}

	return meta, body
}

// extractLinks returns cleaned wikilink targets, deduplicated by exact string
// while preserving first-seen order. Alias suffixes are dropped by the regex;
// media embeds are skipped.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := cleanLinkTarget(m[1])
		if target == "" {
			continue
		}
		if isEmbed(target) {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// cleanLinkTarget strips heading anchors (#...) and block references (^...),
// then reduces folder-qualified targets to their last path component.
func cleanLinkTarget(raw string) string {
	target := raw
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	if i := strings.Index(target, "^"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if i := strings.LastIndex(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	return strings.TrimSpace(target)
}

func isEmbed(target string) bool {
	ext := strings.ToLower(path.Ext(target))
	_, ok := embedExts[ext]
	return ok
}

// extractTags collects lowercase tags from the frontmatter "tags" field and
// from inline #tag markup. body must already have fenced code blocks
// stripped so tags inside code examples are not extracted.
func extractTags(body string, meta map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if meta != nil {
		switch v := meta["tags"].(type) {
		case string:
			add(v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}
