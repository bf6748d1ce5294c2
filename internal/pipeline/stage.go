package pipeline

// Stage is a state of the backup state machine. Runs advance through the
// stages in declaration order and end in StageDone or StageFailed.
type Stage int

const (
	StageInit Stage = iota
	StagePreHook
	StageDump
	StageFilesArchive
	StageCombine
	StagePostHook
	StageTransfer
	StagePostTransferHook
	StageRetention
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageInit:             "INIT",
	StagePreHook:          "PRE_HOOK",
	StageDump:             "DUMP",
	StageFilesArchive:     "FILES_ARCHIVE",
	StageCombine:          "COMBINE",
	StagePostHook:         "POST_HOOK",
	StageTransfer:         "TRANSFER",
	StagePostTransferHook: "POST_TRANSFER_HOOK",
	StageRetention:        "RETENTION",
	StageDone:             "DONE",
	StageFailed:           "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
