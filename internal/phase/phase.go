// Package phase holds the finite-state machine that decides which controls
// the classifier page shows and what its primary button does.
package phase

import "strings"

// Phase is one state of the classifier workflow.
type Phase int

const (
	Initial Phase = iota
	LoadingModel
	ModelReady
	ImageReady
	Identifying
	Complete
)

// Event drives transitions. Next is the only event the machine knows.
type Event string

const Next Event = "next"

// All lists every phase in transition order.
var All = []Phase{Initial, LoadingModel, ModelReady, ImageReady, Identifying, Complete}

// Action names the work bound to the primary button in a phase.
type Action string

const (
	ActionNone      Action = ""
	ActionLoadModel Action = "load-model"
	ActionUpload    Action = "upload"
	ActionIdentify  Action = "identify"
	ActionReset     Action = "reset"
)

// Visibility holds the display flags of a phase.
type Visibility struct {
	ShowImage   bool `json:"show_image"`
	ShowResults bool `json:"show_results"`
}

// Advance follows the Next edge out of p. Unknown phases fall back to Initial.
func Advance(p Phase) Phase {
	return Transition(p, Next)
}

// Transition returns the phase reached from p on ev, or Initial when the
// pair has no edge.
func Transition(p Phase, ev Event) Phase {
	if ev != Next {
		return Initial
	}
	switch p {
	case Initial:
		return LoadingModel
	case LoadingModel:
		return ModelReady
	case ModelReady:
		return ImageReady
	case ImageReady:
		return Identifying
	case Identifying:
		return Complete
	case Complete:
		return ModelReady
	default:
		return Initial
	}
}

// Recover returns the phase a failed in-progress step falls back to.
func Recover(p Phase) Phase {
	switch p {
	case LoadingModel:
		return Initial
	case Identifying:
		return ImageReady
	default:
		return p
	}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p >= Initial && p <= Complete
}

// Busy reports whether p is an in-progress phase with no bound action.
func (p Phase) Busy() bool {
	return p == LoadingModel || p == Identifying
}

func (p Phase) Visibility() Visibility {
	switch p {
	case ModelReady, ImageReady:
		return Visibility{ShowImage: true}
	case Complete:
		return Visibility{ShowImage: true, ShowResults: true}
	default:
		return Visibility{}
	}
}

// Action returns the action the primary button triggers in p.
func (p Phase) Action() Action {
	switch p {
	case Initial:
		return ActionLoadModel
	case ModelReady:
		return ActionUpload
	case ImageReady:
		return ActionIdentify
	case Complete:
		return ActionReset
	default:
		return ActionNone
	}
}

// ButtonLabel returns the primary button text for p.
func (p Phase) ButtonLabel() string {
	switch p {
	case Initial:
		return "Load Model"
	case LoadingModel:
		return "Loading Model..."
	case ModelReady:
		return "Upload Image"
	case ImageReady:
		return "Identify"
	case Identifying:
		return "Identifying..."
	case Complete:
		return "Reset"
	default:
		return ""
	}
}

func (p Phase) String() string {
	switch p {
	case Initial:
		return "initial"
	case LoadingModel:
		return "loadingModel"
	case ModelReady:
		return "modelReady"
	case ImageReady:
		return "imageReady"
	case Identifying:
		return "identifying"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Parse maps a phase name back to its value. Matching is case-insensitive;
// unknown names yield Initial and false.
func Parse(name string) (Phase, bool) {
	for _, p := range All {
		if strings.EqualFold(p.String(), name) {
			return p, true
		}
	}
	return Initial, false
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
