package pipeline

// State is the reprocessing state machine position. Every run starts and ends
// Idle; the only difference between success and rollback is which chunk
// generation survives.
type State int

const (
	Idle State = iota
	StagingNewVersion
	Recovering
	Deciding
	Committing
	RollingBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case StagingNewVersion:
		return "staging new version"
	case Recovering:
		return "recovering"
	case Deciding:
		return "deciding"
	case Committing:
		return "committing"
	case RollingBack:
		return "rolling back"
	default:
		return "unknown"
	}
}
