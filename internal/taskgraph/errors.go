package taskgraph

// InvalidGraphError is the category-1 error (spec §7) raised by Build when a
// container name doesn't resolve, the dependency relation has a cycle, or
// the task container is missing. It is returned before the engine starts;
// it is never emitted as a taskevent.
type InvalidGraphError struct {
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return "invalid graph: " + e.Reason
}
