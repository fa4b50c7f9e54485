// Package view renders a workflow snapshot into what the page shows.
package view

import (
	"github.com/Brownie44l1/waste-api/internal/phase"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

// ImagePath is the route prefix image resources are served under.
const ImagePath = "/images/"

type Button struct {
	Label  string       `json:"label"`
	Action phase.Action `json:"action,omitempty"`
}

type View struct {
	SessionID       string      `json:"session_id,omitempty"`
	Phase           phase.Phase `json:"phase"`
	Button          Button      `json:"button"`
	Busy            bool        `json:"busy"`
	ShowImage       bool        `json:"show_image"`
	ShowResults     bool        `json:"show_results"`
	UploadRequested bool        `json:"upload_requested"`
	ImageURL        string      `json:"image_url,omitempty"`
	BestLabel       string      `json:"best_label,omitempty"`
	Lines           []string    `json:"lines,omitempty"`
	Error           string      `json:"error,omitempty"`
	Version         uint64      `json:"version"`
}

// Render maps a snapshot to its view. The image and results appear only in
// the phases whose flags allow them.
// An unknown phase renders as Initial.
func Render(sessionID string, snap workflow.Snapshot, uploadRequested bool) View {
	if !snap.Phase.Valid() {
		snap.Phase = phase.Initial
	}
	vis := snap.Phase.Visibility()
	v := View{
		SessionID:       sessionID,
		Phase:           snap.Phase,
		Button:          Button{Label: snap.Phase.ButtonLabel(), Action: snap.Phase.Action()},
		Busy:            snap.Phase.Busy(),
		ShowImage:       vis.ShowImage,
		ShowResults:     vis.ShowResults,
		UploadRequested: uploadRequested,
		Version:         snap.Version,
	}
	if vis.ShowImage && snap.Image != nil {
		v.ImageURL = ImagePath + snap.Image.ID
	}
	if vis.ShowResults {
		v.BestLabel = snap.Result.BestLabel()
		v.Lines = snap.Result.Lines()
	}
	if snap.Failure != nil {
		v.Error = snap.Failure.Error()
	}
	return v
}
