package domain

// RunStatus represents the lifecycle state of a bump run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Stage names the furthest step a bump run reached
type Stage string

const (
	StagePrepared  Stage = "prepared"
	StageCommitted Stage = "committed"
	StageUploaded  Stage = "uploaded"
	StageTried     Stage = "tried"
)
