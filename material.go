package forge

// PBRMaterialComponent is the declarative material fed to the renderer's
// update_object_model_material path each frame.
type PBRMaterialComponent struct {
	BaseColor [4]float32 `json:"base_color"` // RGBA, linear
	Metallic  float32    `json:"metallic"`
	Roughness float32    `json:"roughness"`
	Emissive  [3]float32 `json:"emissive"`
}

func DefaultPBRMaterial() PBRMaterialComponent {
	return PBRMaterialComponent{
		BaseColor: [4]float32{0.8, 0.8, 0.8, 1.0},
		Metallic:  0.0,
		Roughness: 0.5,
	}
}
