// pkg/core/transform.go
package core

import "math"

// WorldParent is the parent label used for objects attached to the scene root.
const WorldParent = "World"

// unitTolerance bounds how far a quaternion's norm may drift from 1 and still count as unit.
const unitTolerance = 1e-6

// Vector3 is a local-space position
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a local-space rotation
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityRotation returns the no-rotation quaternion.
func IdentityRotation() Quaternion {
	return Quaternion{W: 1}
}

// Norm returns the quaternion's magnitude.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// IsUnit reports whether q is a unit quaternion within floating point tolerance.
func (q Quaternion) IsUnit() bool {
	return math.Abs(q.Norm()-1) <= unitTolerance
}

// Normalize scales q to unit length. A zero quaternion normalizes to identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return IdentityRotation()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// TransformSnapshot is one object's local position, rotation and parent at a single tick.
type TransformSnapshot struct {
	Position Vector3    `json:"position"`
	Rotation Quaternion `json:"rotation"`
	Parent   string     `json:"parent"`
}

// HasParent reports whether the snapshot names a parent other than the scene root.
func (s TransformSnapshot) HasParent() bool {
	return s.Parent != "" && s.Parent != WorldParent
}
