package model

// Stage identifies which window of the booking flow a (user, show) pair is
// currently in.  Stage 1 is the short seat-hold window granted right after
// locking; Stage 2 is the longer payment window entered when checkout
// starts.  A pair with no active reservation has no stage at all.  The
// orchestrator guarantees at most one stage is active per pair.
type Stage int

const (
	Stage1 Stage = iota + 1 // seat hold window
	Stage2                  // payment window
)

// String returns the set name used for this stage in the backing store.
func (s Stage) String() string {
	switch s {
	case Stage1:
		return "stage1Lock"
	case Stage2:
		return "stage2Lock"
	}
	return "unknownStage"
}
