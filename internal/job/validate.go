package job

import (
	"strings"

	"nexflow/internal/graph"
	"nexflow/internal/provider"
)

// SongModel is the audio model whose song mode swaps the required fields.
const SongModel = "rhart-song"

// validateInput checks the node's resolved input before any network call.
func validateInput(n *graph.Node) error {
	switch n.Kind {
	case graph.KindLanguageModel:
		if empty(n.Str(graph.FieldInputText)) && empty(n.Str(graph.FieldPrompt)) {
			return &provider.ValidationError{Field: graph.FieldInputText}
		}
	case graph.KindImage, graph.KindVideo:
		if empty(n.Str(graph.FieldPrompt)) {
			return &provider.ValidationError{Field: graph.FieldPrompt}
		}
	case graph.KindAudio:
		if n.Str(graph.FieldModel) == SongModel {
			for _, f := range []string{graph.FieldSongName, graph.FieldStyleDesc, graph.FieldLyrics} {
				if empty(n.Str(f)) {
					return &provider.ValidationError{Field: f}
				}
			}
			return nil
		}
		if empty(n.Str(graph.FieldText)) {
			return &provider.ValidationError{Field: graph.FieldText}
		}
	case graph.KindSpeaker:
		if empty(n.Str(graph.FieldText)) {
			return &provider.ValidationError{Field: graph.FieldText}
		}
	default:
		return &provider.ValidationError{
			Field:  "kind",
			Reason: "nodes of kind " + string(n.Kind) + " are not generative",
		}
	}
	return nil
}

// buildInput assembles the provider payload from the node's resolved fields.
func buildInput(n *graph.Node) map[string]any {
	in := map[string]any{}
	put := func(key, val string) {
		if !empty(val) {
			in[key] = val
		}
	}
	switch n.Kind {
	case graph.KindLanguageModel:
		put("prompt", n.Str(graph.FieldPrompt))
		put("inputText", n.Str(graph.FieldInputText))
		put("model", n.Str(graph.FieldModel))
	case graph.KindImage:
		put("prompt", n.Str(graph.FieldPrompt))
		put("model", n.Str(graph.FieldModel))
		if imgs := n.StrList(graph.FieldInputImages); len(imgs) > 0 {
			in["inputImages"] = imgs
		}
	case graph.KindVideo:
		put("prompt", n.Str(graph.FieldPrompt))
		put("model", n.Str(graph.FieldModel))
		put("referenceVideo", n.Str(graph.FieldRefVideo))
		if imgs := n.StrList(graph.FieldInputImages); len(imgs) > 0 {
			in["inputImages"] = imgs
		}
	case graph.KindAudio:
		put("model", n.Str(graph.FieldModel))
		if n.Str(graph.FieldModel) == SongModel {
			put("songName", n.Str(graph.FieldSongName))
			put("styleDesc", n.Str(graph.FieldStyleDesc))
			put("lyrics", n.Str(graph.FieldLyrics))
		} else {
			put("text", n.Str(graph.FieldText))
		}
	case graph.KindSpeaker:
		put("text", n.Str(graph.FieldText))
		put("model", n.Str(graph.FieldModel))
	}
	return in
}

// outputField maps a kind to the data field its result lands in.
func outputField(k graph.Kind) string {
	switch k {
	case graph.KindLanguageModel:
		return graph.FieldOutputText
	case graph.KindImage:
		return graph.FieldOutputImage
	case graph.KindVideo:
		return graph.FieldOutputVideo
	case graph.KindAudio, graph.KindSpeaker:
		return graph.FieldOutputAudio
	}
	return ""
}

// promptOf returns the prompt recorded in the ledger for a node.
func promptOf(n *graph.Node) string {
	for _, f := range []string{graph.FieldPrompt, graph.FieldInputText, graph.FieldText, graph.FieldLyrics} {
		if v := n.Str(f); !empty(v) {
			return v
		}
	}
	return ""
}

func empty(s string) bool { return strings.TrimSpace(s) == "" }
