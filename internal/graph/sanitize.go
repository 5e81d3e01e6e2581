package graph

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

// Reserved core table names. Dynamic entity types may not collide with
// these; dynamic relation types additionally may not shadow the core node
// tables themselves.
var (
	reservedEntityNames = map[string]struct{}{
		"tag": {}, "chunk": {}, "tagged_with": {}, "links_to": {}, "from_document": {},
	}
	reservedRelationNames = map[string]struct{}{
		"tag": {}, "chunk": {}, "tagged_with": {}, "links_to": {}, "from_document": {},
		"note": {}, "memory": {},
	}
)

// SanitizeIdentifier reduces a runtime-chosen table or relation name to a
// safe identifier: lowercase, every character outside [a-z0-9_] replaced
// with an underscore, and a leading underscore prepended when the result
// would start with a digit. Every identifier interpolated into query text
// must pass through here.
func SanitizeIdentifier(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return "", fmt.Errorf("graph: empty identifier")
	}
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out, nil
}

// EntityTypeName sanitizes a dynamic entity type and rejects reserved
// core names.
func EntityTypeName(name string) (string, error) {
	s, err := SanitizeIdentifier(name)
	if err != nil {
		return "", err
	}
	if _, reserved := reservedEntityNames[s]; reserved {
		return "", fmt.Errorf("graph: entity type %q: %w", s, apperr.ErrReservedName)
	}
	return s, nil
}

// RelationTypeName sanitizes a dynamic relation type and rejects reserved
// core names, including the core node tables.
func RelationTypeName(name string) (string, error) {
	s, err := SanitizeIdentifier(name)
	if err != nil {
		return "", err
	}
	if _, reserved := reservedRelationNames[s]; reserved {
		return "", fmt.Errorf("graph: relation type %q: %w", s, apperr.ErrReservedName)
	}
	return s, nil
}
