package violation

// BoundingBox is the pixel-space box reported by the detector.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is a single recognized violation within a frame.
type Detection struct {
	Type       Kind         `json:"type"`
	Confidence *float64     `json:"confidence,omitempty"`
	Label      string       `json:"label,omitempty"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// Frame is one image or time slice with zero or more detections.
// FrameID is the join key across every log the pipeline writes.
type Frame struct {
	FrameID    string      `json:"frame_id"`
	Detections []Detection `json:"detections"`
}

// Types returns the raw violation tags of the frame in detection order.
func (f *Frame) Types() []string {
	out := make([]string, len(f.Detections))
	for i, d := range f.Detections {
		out[i] = string(d.Type)
	}
	return out
}

// FirstType returns the first detection's tag, or false for an empty frame.
func (f *Frame) FirstType() (Kind, bool) {
	if len(f.Detections) == 0 {
		return "", false
	}
	return f.Detections[0].Type, true
}

// Batch is an ordered sequence of frames as produced by one detector run.
type Batch []Frame
