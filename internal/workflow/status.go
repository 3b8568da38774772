package workflow

import "reelcast/internal/store"

// edges lists the forward moves of the status graph. Self edges record
// correlation ids and retry bookkeeping without advancing. Failure is
// reachable from every non-terminal status and is handled in CanTransition.
var edges = map[store.Status][]store.Status{
	store.StatusQueued:            {store.StatusRendering},
	store.StatusRendering:         {store.StatusRendering, store.StatusCaptionProcessing},
	store.StatusCaptionProcessing: {store.StatusCaptionProcessing, store.StatusDistributing},
	store.StatusDistributing:      {store.StatusDistributing, store.StatusCompleted},
}

// CanTransition reports whether from → to is an edge of the status graph.
func CanTransition(from, to store.Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == store.StatusFailed {
		return true
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AwaitingField returns the provider correlation field a status waits on.
func AwaitingField(status store.Status) (store.CorrelationField, bool) {
	switch status {
	case store.StatusRendering:
		return store.CorrelationRender, true
	case store.StatusCaptionProcessing:
		return store.CorrelationCaption, true
	}
	return "", false
}

