package graph

import (
	"encoding/json"
	"strings"
)

// Well-known data fields. Data stays an open map so that partially populated
// nodes load cleanly, but every field the core reads or writes is named here.
const (
	FieldTitle   = "title"
	FieldContent = "content"

	// Derived fields, owned by the propagation engine.
	FieldInputText   = "inputText"
	FieldPrompt      = "prompt"
	FieldInputImages = "inputImages"
	FieldInputImage  = "inputImage"
	FieldRefVideo    = "referenceVideo"

	// Job-owned fields.
	FieldProgress     = "progress"
	FieldErrorMessage = "errorMessage"
	FieldOutputText   = "outputText"
	FieldOutputImage  = "outputImage"
	FieldOutputVideo  = "outputVideo"
	FieldOutputAudio  = "outputAudio"

	FieldText     = "text"
	FieldSegments = "segments"
	FieldModel    = "model"

	// Audio song mode.
	FieldSongName  = "songName"
	FieldStyleDesc = "styleDesc"
	FieldLyrics    = "lyrics"

	// Camera instruction candidates, in priority order.
	FieldMovementPrompt = "movementPrompt"
	FieldPresetLabel    = "presetLabel"
	FieldCustomPrompt   = "customPrompt"

	FieldWidth  = "width"
	FieldHeight = "height"
)

// Node is one vertex of the content graph.
type Node struct {
	ID   string         `json:"id"`
	Kind Kind           `json:"kind"`
	Data map[string]any `json:"data"`
}

// Edge connects a source node's output port to a target node's input port.
// Ordering among edges into the same (node, port) follows creation order and
// is significant for text concatenation.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourcePort string `json:"sourcePort"`
	Target     string `json:"target"`
	TargetPort string `json:"targetPort"`
}

// Str returns a string field, "" if absent or not a string.
func (n *Node) Str(field string) string {
	if n == nil || n.Data == nil {
		return ""
	}
	s, _ := n.Data[field].(string)
	return s
}

// StrList returns a []string field, tolerating []any payloads from JSON.
func (n *Node) StrList(field string) []string {
	if n == nil || n.Data == nil {
		return nil
	}
	switch v := n.Data[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Title returns the node's display title, falling back to its kind.
func (n *Node) Title() string {
	if t := strings.TrimSpace(n.Str(FieldTitle)); t != "" {
		return t
	}
	return string(n.Kind)
}

// Clone deep-copies the node, including its data map.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{ID: n.ID, Kind: n.Kind}
	if n.Data != nil {
		cp.Data = cloneData(n.Data)
	}
	return cp
}

// cloneData deep-copies a data map through JSON. Data values are always
// JSON-shaped (strings, numbers, bools, lists, maps), so the round trip is
// lossless enough for snapshot semantics.
func cloneData(in map[string]any) map[string]any {
	b, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		out = make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
	}
	return out
}
