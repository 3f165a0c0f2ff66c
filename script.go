package forge

// ScriptComponent references a script source by path. Execution belongs to
// an embedding host; the editor only stores and persists the reference.
type ScriptComponent struct {
	Path string `json:"path"`
}
