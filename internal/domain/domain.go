package domain

// DocumentKey is the store key holding the whole workflow document.
const DocumentKey = "tasks"

type Task struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Done             bool   `json:"done"`
	Approved         bool   `json:"approved"`
	CompletedDetails string `json:"completedDetails"`
}

// Status reports the three-state view of a task: Approved > Done > Pending.
func (t Task) Status() string {
	switch {
	case t.Approved:
		return "Approved"
	case t.Done:
		return "Done"
	default:
		return "Pending"
	}
}

// Locked reports whether the task can no longer be edited or deleted.
func (t Task) Locked() bool {
	return t.Done || t.Approved
}

type RequestEntry struct {
	RequestID       string `json:"requestId"`
	OriginalRequest string `json:"originalRequest"`
	SplitDetails    string `json:"splitDetails"`
	Tasks           []Task `json:"tasks"`
	Completed       bool   `json:"completed"`
}

// TaskIndex returns the position of taskID within the request, or -1.
func (r *RequestEntry) TaskIndex(taskID string) int {
	for i := range r.Tasks {
		if r.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// ApprovedCount counts tasks with approved=true.
func (r RequestEntry) ApprovedCount() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Approved {
			n++
		}
	}
	return n
}

// AllApproved is true for a request whose every task is approved,
// including a request with no tasks.
func (r RequestEntry) AllApproved() bool {
	return r.ApprovedCount() == len(r.Tasks)
}

// Document is the unit of persistence: every request in insertion order.
type Document struct {
	Requests []RequestEntry `json:"requests"`
}

// Clone returns a deep copy so callers cannot mutate engine state.
func (d Document) Clone() Document {
	out := Document{Requests: make([]RequestEntry, len(d.Requests))}
	for i, r := range d.Requests {
		r.Tasks = append([]Task(nil), r.Tasks...)
		if r.Tasks == nil {
			r.Tasks = []Task{}
		}
		out.Requests[i] = r
	}
	return out
}

// TaskInput is the caller-supplied shape of a new task.
type TaskInput struct {
	Title       string `json:"title" doc:"Short task title"`
	Description string `json:"description" doc:"What the task involves"`
}

// RequestSummary is one row of the request listing.
type RequestSummary struct {
	RequestID       string `json:"requestId"`
	OriginalRequest string `json:"originalRequest"`
	ApprovedTasks   int    `json:"approvedTasks"`
	TotalTasks      int    `json:"totalTasks"`
	Completed       bool   `json:"completed"`
}
