package runtime

// TaskPlannerName is the conventional subsystem name of the Task
// Planner, exported so peers never hand-type it (§3 supplement, from
// original_source's OpenROBO_SubsystemName_TASKPLANNER).
const TaskPlannerName = "TP"

// SubsystemEntry is one row of the subsystem table: a peer's logical
// name, its IPv4 address and its accept port (§3 Subsystem-table entry).
type SubsystemEntry struct {
	ID   string
	IP   string
	Port uint16
}

// SubsystemTable is the per-process mapping of peer subsystem name to
// (IP, accept port), established once at bootstrap and immutable
// afterwards. Entry order matters only in that entry 0 is always self;
// for peers, entry 1 is the Task Planner.
type SubsystemTable struct {
	entries []SubsystemEntry
	frozen  bool
}

func newSubsystemTable() *SubsystemTable {
	return &SubsystemTable{}
}

// add appends an entry, rejecting duplicate ids. Only valid before the
// table is frozen.
func (t *SubsystemTable) add(id, ip string, port uint16) error {
	if t.frozen {
		return ErrAlreadyBootstrapped
	}
	if _, ok := t.lookup(id); ok {
		return ErrDuplicateSubsystem
	}
	t.entries = append(t.entries, SubsystemEntry{ID: id, IP: ip, Port: port})
	return nil
}

func (t *SubsystemTable) freeze() {
	t.frozen = true
}

func (t *SubsystemTable) lookup(id string) (SubsystemEntry, bool) {
	for _, e := range t.entries {
		if e.ID == id {
			return e, true
		}
	}
	return SubsystemEntry{}, false
}

// Lookup returns the subsystem table entry for id.
func (t *SubsystemTable) Lookup(id string) (SubsystemEntry, bool) {
	return t.lookup(id)
}

// Entries returns a copy of the table's entries, in bootstrap order.
func (t *SubsystemTable) Entries() []SubsystemEntry {
	out := make([]SubsystemEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Snapshot returns an independent copy of the table for handing to a
// newly spawned operation thread (§4.8: "a snapshot of the subsystem
// table"). The table is immutable after bootstrap, so this is cheap and
// never needs to be refreshed for the life of the thread.
func (t *SubsystemTable) Snapshot() *SubsystemTable {
	cp := &SubsystemTable{frozen: t.frozen}
	cp.entries = append(cp.entries, t.entries...)
	return cp
}
