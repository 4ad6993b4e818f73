package anchor

// Pose is a viewpoint placement: position plus viewing direction.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Lerp interpolates component-wise between a and b at fraction t.
// t is expected to already be eased/clamped by the caller.
func Lerp(a, b Pose, t float64) Pose {
	return Pose{
		X:     a.X + (b.X-a.X)*t,
		Y:     a.Y + (b.Y-a.Y)*t,
		Z:     a.Z + (b.Z-a.Z)*t,
		Yaw:   a.Yaw + (b.Yaw-a.Yaw)*t,
		Pitch: a.Pitch + (b.Pitch-a.Pitch)*t,
	}
}

// Anchor is one named spatial placement in the building hierarchy.
// ParentID is empty for root anchors.
type Anchor struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Pose     Pose   `json:"pose"`
}
