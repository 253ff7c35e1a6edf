package engine

import (
	"fmt"
	"strconv"
	"strings"

	"taskline/internal/domain"
)

const (
	requestPrefix = "req-"
	taskPrefix    = "task-"
)

// idAllocator hands out req-<N> and task-<N> identifiers. Its counters are a
// cache derived from the loaded document, never persisted on their own.
type idAllocator struct {
	requests int
	tasks    int
}

// seedAllocator scans every id in doc and starts both counters at the
// highest numeric suffix seen. Ids that don't parse are skipped.
func seedAllocator(doc domain.Document) idAllocator {
	var a idAllocator
	for _, r := range doc.Requests {
		if n, ok := parseSuffix(r.RequestID, requestPrefix); ok && n > a.requests {
			a.requests = n
		}
		for _, t := range r.Tasks {
			if n, ok := parseSuffix(t.ID, taskPrefix); ok && n > a.tasks {
				a.tasks = n
			}
		}
	}
	return a
}

func (a *idAllocator) nextRequest() string {
	a.requests++
	return fmt.Sprintf("%s%d", requestPrefix, a.requests)
}

func (a *idAllocator) nextTask() string {
	a.tasks++
	return fmt.Sprintf("%s%d", taskPrefix, a.tasks)
}

func parseSuffix(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(id), prefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
