package forge

// PointLightComponent is the light source the renderer consumes. Position
// comes from the entity's GlobalTransform.
type PointLightComponent struct {
	Color     [3]float32 `json:"color"` // RGB, linear
	Intensity float32    `json:"intensity"`
	Range     float32    `json:"range"`
}
