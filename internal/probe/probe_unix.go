//go:build !windows

package probe

import (
	"os/exec"
	"strconv"
	"strings"
)

// descendantPIDs walks the process tree rooted at pid using `pgrep -P`
// (spec.md §4.6: "pid discovery via pgrep -P on Unix").
func descendantPIDs(pid int) []int {
	var all []int
	frontier := []int{pid}

	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		out, err := exec.Command("pgrep", "-P", strconv.Itoa(parent)).Output()
		if err != nil {
			continue
		}
		for _, line := range strings.Fields(string(out)) {
			child, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			all = append(all, child)
			frontier = append(frontier, child)
		}
	}
	return all
}
