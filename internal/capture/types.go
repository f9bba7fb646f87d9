package capture

import (
	"fmt"
	"time"
)

// MediaReference identifies the video to thumbnail. URL is the identity.
type MediaReference struct {
	URL            string `json:"url"`
	ExternalPoster string `json:"externalPoster,omitempty"`
}

// State is the orchestrator state.
type State int

const (
	Unstarted State = iota
	WaitingForVisibility
	CheckingCache
	Extracting
	Done
	DoneNoThumbnail
)

var stateNames = [...]string{
	Unstarted:            "unstarted",
	WaitingForVisibility: "waiting_for_visibility",
	CheckingCache:        "checking_cache",
	Extracting:           "extracting",
	Done:                 "done",
	DoneNoThumbnail:      "done_no_thumbnail",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is Done or DoneNoThumbnail.
func (s State) Terminal() bool {
	return s == Done || s == DoneNoThumbnail
}

// Phase is the capture session phase.
type Phase int

const (
	GateWaiting Phase = iota
	Loading
	Seeking
	Capturing
	Succeeded
	Failed
	Abandoned
)

var phaseNames = [...]string{
	GateWaiting: "gate_waiting",
	Loading:     "loading",
	Seeking:     "seeking",
	Capturing:   "capturing",
	Succeeded:   "succeeded",
	Failed:      "failed",
	Abandoned:   "abandoned",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Source says where a payload came from.
type Source string

const (
	SourceNone      Source = ""
	SourcePoster    Source = "poster"
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
)

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	ExternalPoster string    `json:"externalPoster,omitempty"`
	State          State     `json:"state"`
	Phase          Phase     `json:"phase"`
	Attempts       int       `json:"attempts"`
	Deadline       time.Time `json:"deadline,omitzero"`
	Payload        string    `json:"payload,omitempty"`
	Source         Source    `json:"source,omitempty"`
	Extractions    int       `json:"extractions"`
	Mounted        bool      `json:"mounted"`
	MountedAt      time.Time `json:"mountedAt"`
}

// Kind is what the presentation surface renders.
type Kind string

const (
	KindThumbnail   Kind = "thumbnail"
	KindPlaceholder Kind = "placeholder"
)

// ViewModel is the presentation surface: a thumbnail when one resolved,
// otherwise the placeholder. The play overlay is always shown.
type ViewModel struct {
	Kind        Kind   `json:"kind"`
	Src         string `json:"src,omitempty"`
	PlayOverlay bool   `json:"playOverlay"`
}

// View renders a snapshot. The placeholder looks the same whether
// generation never started, is in progress or failed.
func View(s Snapshot) ViewModel {
	if s.State == Done && s.Payload != "" {
		return ViewModel{Kind: KindThumbnail, Src: s.Payload, PlayOverlay: true}
	}
	return ViewModel{Kind: KindPlaceholder, PlayOverlay: true}
}
