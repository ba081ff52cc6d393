package resolve

import (
	"slices"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
)

// waves splits sources, kept in order, into groups that can be scanned
// together. A source starts a new group when it looks entities of kind up by
// an identifier that a source already in the current group supplies.
// Sources that exchange no identifiers share one group.
func waves(sources []provider.Source, kind model.Kind) [][]int {
	var (
		out      [][]int
		current  []int
		supplied []string
	)
	for i, src := range sources {
		var supplies, lookups []string
		if k, ok := src.(provider.Keyed); ok {
			supplies, lookups = k.Supplies(kind), k.LooksUp(kind)
		}
		if len(current) > 0 && slices.ContainsFunc(lookups, func(key string) bool {
			return slices.Contains(supplied, key)
		}) {
			out = append(out, current)
			current, supplied = nil, nil
		}
		current = append(current, i)
		supplied = append(supplied, supplies...)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}
