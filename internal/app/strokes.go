package app

import "github.com/dkeye/Pairwise/internal/domain"

// activeStrokes is the in-memory working set of strokes still being drawn.
// Never persisted.
type activeStrokes struct {
	byID map[string]*domain.Stroke
}

func newActiveStrokes() *activeStrokes {
	return &activeStrokes{byID: make(map[string]*domain.Stroke)}
}

// start returns false when id is already active.
func (a *activeStrokes) start(st domain.Stroke) bool {
	if _, ok := a.byID[st.ID]; ok {
		return false
	}
	a.byID[st.ID] = &st
	return true
}

func (a *activeStrokes) appendPoint(id string, p domain.Point) (*domain.Stroke, bool) {
	st, ok := a.byID[id]
	if !ok {
		return nil, false
	}
	st.Points = append(st.Points, p)
	return st, true
}

func (a *activeStrokes) get(id string) (*domain.Stroke, bool) {
	st, ok := a.byID[id]
	return st, ok
}

func (a *activeStrokes) remove(id string) { delete(a.byID, id) }

func (a *activeStrokes) clear() { clear(a.byID) }

func (a *activeStrokes) len() int { return len(a.byID) }
