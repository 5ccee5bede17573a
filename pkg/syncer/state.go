package syncer

// State is a step of the sync state machine
type State string

const (
	StateInit        State = "INIT"
	StateLoading     State = "LOADING_STATE"
	StateFetching    State = "FETCHING_PAGE"
	StateClassifying State = "CLASSIFYING_POSTS"
	StateCommitting  State = "COMMITTING_PAGE"
	StateDone        State = "DONE"
	StateTerminated  State = "TERMINATED"
)

// StopReason explains why a run ended
type StopReason string

const (
	// StopDone means the API reported no further pages
	StopDone StopReason = "done"
	// StopBudget means the per-run request budget was spent
	StopBudget StopReason = "budget"
	// StopKnown means a page containing an already known post was committed
	// while stop-at-known was set
	StopKnown StopReason = "known"
	// StopCancelled means the context was cancelled between pages
	StopCancelled StopReason = "cancelled"
	// StopError means a fatal error ended the run
	StopError StopReason = "error"
)
