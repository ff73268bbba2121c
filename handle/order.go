package handle

import "sort"

// sortNewestFirst orders states so that derived resources, which are
// always wrapped after the resource they came from, are freed first.
func sortNewestFirst(states []*state) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].id > states[j].id
	})
}
