package runner

import "time"

// Cookie is one opaque session credential injected into the browser session.
// Field names follow the on-disk cookies.json produced by browser exporters.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Account is one independently scheduled unit of work. It is loaded fresh at
// the start of every cycle and never mutated by the orchestrator.
type Account struct {
	// Name is the account directory basename and the unique fleet identity.
	Name string
	// Username is the public handle burned into the transformed asset.
	Username string
	// Cookies is the non-empty session credential list.
	Cookies []Cookie
	// HashtagPool is sampled when composing the published caption.
	HashtagPool []string
	// UseCustomCaption selects CustomCaption over the extracted caption.
	UseCustomCaption bool
	CustomCaption    string
	// Title is an optional overlay line rendered at the top of the frame.
	Title string
}

// Phase names one sequential stage of the per-account pipeline.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseAcquireTarget   Phase = "acquire_target"
	PhaseFetchAsset      Phase = "fetch_asset"
	PhaseExtractMetadata Phase = "extract_metadata"
	PhaseTransformAsset  Phase = "transform_asset"
	PhasePublish         Phase = "publish"
)

// JobState is the mutable context for one pipeline execution. Phases populate
// fields forward and never rewind a previously set field. It lives exactly as
// long as one account's job and is never shared across cycles.
type JobState struct {
	JobID                string
	AccountName          string
	TargetURL            string
	AssetPath            string
	TransformedAssetPath string
	CaptionText          string
}

// AssetSource identifies a harvested media response: where to download it
// from and the request headers the origin expects to see again.
type AssetSource struct {
	URL     string
	Headers map[string]string
	Size    int64
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}
