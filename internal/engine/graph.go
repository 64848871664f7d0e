package engine

import (
	"fmt"
	"strings"
)

// topoSort orders ids so that every id comes after its dependencies. Ties
// keep the order of ids. Dependencies outside ids are ignored.
func topoSort(ids []string, deps func(id string) []string) ([]string, error) {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	indegree := make([]int, len(ids))
	dependents := make([][]int, len(ids))
	for i, id := range ids {
		for _, d := range deps(id) {
			j, ok := index[d]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(ids))
	out := make([]string, 0, len(ids))
	for len(out) < len(ids) {
		next := -1
		for i := range ids {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cycle []string
			for i, id := range ids {
				if !done[i] {
					cycle = append(cycle, id)
				}
			}
			return nil, fmt.Errorf("dependency cycle between %s", strings.Join(cycle, ", "))
		}
		done[next] = true
		out = append(out, ids[next])
		for _, k := range dependents[next] {
			indegree[k]--
		}
	}
	return out, nil
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
