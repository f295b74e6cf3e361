// Package task defines the unit of work dispatched to the model endpoint
// and the write-once manifest that plans a run.
package task

// Key uniquely identifies one unit of work: one student paired with one
// knowledge component.
type Key struct {
	StudentID string
	KCName    string
}

func (k Key) String() string {
	return k.StudentID + "/" + k.KCName
}

// Payload is the opaque request data sent to the model endpoint.
type Payload struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
}

// Task is an immutable unit of work. Its completion status is not stored
// here; it is derived from the checkpoint store.
type Task struct {
	Key     Key
	Payload Payload
}

// Manifest is the ordered plan of all tasks for a run. A manifest is
// write-once: it is persisted before dispatch begins and never mutated,
// only consulted.
type Manifest struct {
	Tasks []Task
}

// Keys returns the composite keys in manifest order.
func (m *Manifest) Keys() []Key {
	keys := make([]Key, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		keys = append(keys, t.Key)
	}
	return keys
}

// Len returns the number of planned tasks.
func (m *Manifest) Len() int {
	return len(m.Tasks)
}
