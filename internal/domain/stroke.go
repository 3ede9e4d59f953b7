// Package domain contains entities without logic, just data.
package domain

import "errors"

var ErrInvalidTool = errors.New("invalid tool")

type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

func ParseTool(raw string) (Tool, error) {
	switch Tool(raw) {
	case ToolPen, ToolEraser:
		return Tool(raw), nil
	}
	return "", ErrInvalidTool
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is a freehand drawing action. Timestamp is unix milliseconds.
type Stroke struct {
	ID        string  `json:"id"`
	Tool      Tool    `json:"tool"`
	Color     string  `json:"color"`
	Points    []Point `json:"points"`
	Timestamp int64   `json:"timestamp"`
}

// Clone returns a copy that shares no point storage with s.
func (s Stroke) Clone() Stroke {
	pts := make([]Point, len(s.Points))
	copy(pts, s.Points)
	s.Points = pts
	return s
}
