package pipeline

// Pipeline stage names, reported on the job record as generation advances.
const (
	StageOutline       = "outline"
	StageStoryText     = "story_text"
	StageIllustrations = "illustrations"
	StageAssembly      = "assembly"
)

// Stage progress bands. Each stage maps its internal completion onto a
// fixed slice of the overall percentage so progress never moves backwards
// when stages overlap.
const (
	outlineStart     = 0
	outlineEnd       = 15
	storyTextEnd     = 40
	illustrationsEnd = 90
	assemblyEnd      = 100
)

// stagePercent maps done/total within a stage band onto overall progress.
func stagePercent(from, to, done, total int) int {
	if total <= 0 {
		return from
	}
	if done > total {
		done = total
	}
	return from + (to-from)*done/total
}
