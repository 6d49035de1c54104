package graph

// Kind identifies a node's behavior and data shape.
type Kind string

const (
	KindText          Kind = "text"
	KindLanguageModel Kind = "language-model"
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindAudio         Kind = "audio"
	KindSpeaker       Kind = "speaker"
	KindTextSplit     Kind = "text-split"
	KindCamera        Kind = "camera"
)

// Kinds lists every valid node kind.
var Kinds = []Kind{
	KindText,
	KindLanguageModel,
	KindImage,
	KindVideo,
	KindAudio,
	KindSpeaker,
	KindTextSplit,
	KindCamera,
}

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindLanguageModel, KindImage, KindVideo,
		KindAudio, KindSpeaker, KindTextSplit, KindCamera:
		return true
	}
	return false
}

// CombineMode describes how multiple edges into the same input port are merged.
type CombineMode int

const (
	// CombineJoinText joins contributed strings with a comma, skipping
	// empty contributions, preserving edge creation order.
	CombineJoinText CombineMode = iota
	// CombineCollect gathers contributed URLs into an ordered, de-duplicated
	// list capped at MaxCollected entries.
	CombineCollect
	// CombineSingle takes only the first matching contribution.
	CombineSingle
)

// MaxCollected caps collection-mode input lists.
const MaxCollected = 10

// Standard port names.
const (
	PortInput      = "input"
	PortOutput     = "output"
	PortImageInput = "image-input"
	PortRefVideo   = "reference-video"

	// TextSplit exposes one output port per segment plus a sentinel that
	// contributes nothing.
	PortSplitPrefix = "output-"
	PortSplitNull   = "output-null"
)

// InputPort declares one input port of a node kind: which upstream kinds it
// accepts, how multiple incoming edges combine, and which data field the
// resolved value lands in.
type InputPort struct {
	Name    string
	Accepts []Kind
	Combine CombineMode
	Field   string
}

var textProducers = []Kind{KindText, KindLanguageModel, KindTextSplit, KindCamera}

// inputPorts is the closed port contract per kind.
var inputPorts = map[Kind][]InputPort{
	KindText: nil,
	KindLanguageModel: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldInputText},
	},
	KindImage: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldPrompt},
		{Name: PortImageInput, Accepts: []Kind{KindImage}, Combine: CombineCollect, Field: FieldInputImages},
	},
	KindVideo: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldPrompt},
		{Name: PortImageInput, Accepts: []Kind{KindImage}, Combine: CombineCollect, Field: FieldInputImages},
		{Name: PortRefVideo, Accepts: []Kind{KindVideo}, Combine: CombineSingle, Field: FieldRefVideo},
	},
	KindAudio: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldText},
	},
	KindSpeaker: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldText},
	},
	KindTextSplit: {
		{Name: PortInput, Accepts: textProducers, Combine: CombineJoinText, Field: FieldInputText},
	},
	KindCamera: {
		{Name: PortImageInput, Accepts: []Kind{KindImage}, Combine: CombineSingle, Field: FieldInputImage},
	},
}

// InputPorts returns the input port contract for a kind. The returned slice
// must not be mutated.
func InputPorts(k Kind) []InputPort {
	return inputPorts[k]
}

// InputPort looks up a single input port by name.
func LookupInputPort(k Kind, name string) (InputPort, bool) {
	for _, p := range inputPorts[k] {
		if p.Name == name {
			return p, true
		}
	}
	return InputPort{}, false
}

// Accepts reports whether the port accepts contributions from the given
// upstream kind.
func (p InputPort) AcceptsKind(k Kind) bool {
	for _, a := range p.Accepts {
		if a == k {
			return true
		}
	}
	return false
}

// defaultSize holds the kind-specific width/height backfilled on project load
// when style metadata is missing.
var defaultSize = map[Kind][2]int{
	KindText:          {260, 160},
	KindLanguageModel: {300, 200},
	KindImage:         {320, 280},
	KindVideo:         {360, 300},
	KindAudio:         {300, 180},
	KindSpeaker:       {300, 180},
	KindTextSplit:     {280, 220},
	KindCamera:        {280, 200},
}

// DefaultSize returns the default width and height for a kind.
func DefaultSize(k Kind) (w, h int) {
	s, ok := defaultSize[k]
	if !ok {
		return 280, 180
	}
	return s[0], s[1]
}
