package route

// StepReference locates a step inside a flattened route.
type StepReference struct {
	// GlobalIndex is contiguous from 0 across all legs.
	GlobalIndex int
	LegIndex    int
	StepInLeg   int
	Step        Step
	// CumulativeMetersBefore is the total distance of every earlier step.
	CumulativeMetersBefore int
}

// Flatten converts the leg/step hierarchy into one list in travel order. An
// empty route yields an empty (non-nil) list.
func Flatten(r Route) []StepReference {
	refs := make([]StepReference, 0, r.StepCount())
	cumulative := 0

	for legIdx, leg := range r.Legs {
		for stepIdx, step := range leg.Steps {
			refs = append(refs, StepReference{
				GlobalIndex:            len(refs),
				LegIndex:               legIdx,
				StepInLeg:              stepIdx,
				Step:                   step,
				CumulativeMetersBefore: cumulative,
			})
			cumulative += step.DistanceMeters
		}
	}

	return refs
}
