// Package models defines taxonomy configuration for VoiceBrain classifications.
package models

import "strings"

// DefaultEntitySet is the entity dimension used when a deployment does not
// configure its own via ENTITY_SET.
var DefaultEntitySet = []string{"IHA", "Personal", "Other"}

// Taxonomy holds the classification dimensions. Activity and action-type sets
// are fixed; the entity set is defined per deployment.
type Taxonomy struct {
	Entities []string
}

// DefaultTaxonomy returns a taxonomy with the default entity set.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{Entities: append([]string(nil), DefaultEntitySet...)}
}

// ParseEntitySet parses a comma-separated entity list (e.g. from the
// ENTITY_SET environment variable) into a taxonomy. Blank entries are
// dropped; an empty result falls back to the default set.
func ParseEntitySet(raw string) Taxonomy {
	var entities []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			entities = append(entities, name)
		}
	}
	if len(entities) == 0 {
		return DefaultTaxonomy()
	}
	return Taxonomy{Entities: entities}
}

// IsValidEntity checks if the given entity is in the deployment's closed set.
func (t Taxonomy) IsValidEntity(entity string) bool {
	for _, e := range t.Entities {
		if entity == e {
			return true
		}
	}
	return false
}
