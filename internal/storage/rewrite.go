package storage

import (
	"fmt"
	"regexp"
)

// RewriteLinks rewrites every [[oldTitle]] and [[oldTitle|alias]] reference
// across the corpus to point at newTitle, preserving any alias suffix.
// Anchored references ([[title#heading]]) are left untouched. Returns the
// number of files modified.
func (f *FS) RewriteLinks(oldTitle, newTitle string) (int, error) {
	re, err := regexp.Compile(`\[\[` + regexp.QuoteMeta(oldTitle) + `(\|[^\]]*)?\]\]`)
	if err != nil {
		return 0, fmt.Errorf("storage: rewrite links: %w", err)
	}

	metas, err := f.List("")
	if err != nil {
		return 0, err
	}

	modified := 0
	for _, m := range metas {
		data, err := f.Read(m.Path)
		if err != nil {
			return modified, err
		}
		if !re.Match(data) {
			continue
		}
		updated := re.ReplaceAllStringFunc(string(data), func(match string) string {
			sub := re.FindStringSubmatch(match)
			return "[[" + newTitle + sub[1] + "]]"
		})
		if updated == string(data) {
			continue
		}
		if err := f.Write(m.Path, []byte(updated)); err != nil {
			return modified, err
		}
		modified++
	}
	return modified, nil
}
