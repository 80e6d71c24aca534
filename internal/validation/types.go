package validation

// SubmitCatRequest is the payload for POST /cats
type SubmitCatRequest struct {
	Lat         float64 `json:"lat" validate:"min=-90,max=90"`    // WGS84 latitude
	Lon         float64 `json:"lon" validate:"min=-180,max=180"`  // WGS84 longitude
	Name        string  `json:"name" validate:"required,max=100"` // display name for the cat
	Description string  `json:"description,omitempty" validate:"max=1000"`
}

// ModerateCatRequest is the payload for POST /cats/:id/moderate
type ModerateCatRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// IssueTokenRequest is the payload for POST /tokens. Action picks the
// scope the token is bound to; a token for one cat and action cannot be
// spent on another.
type IssueTokenRequest struct {
	CatID  string `json:"cat_id" validate:"required"`
	Action string `json:"action" validate:"required,oneof=treat comment"`
}

// GiveTreatRequest is the payload for POST /cats/:id/treats
type GiveTreatRequest struct {
	Token string `json:"token" validate:"required"`
}

// PostCommentRequest is the payload for POST /cats/:id/comments. Body
// length is enforced against the configured maximum by the store.
type PostCommentRequest struct {
	Token string `json:"token" validate:"required"`
	Body  string `json:"body" validate:"required"`
}

// ViewportQuery holds the parsed bbox parameter of GET /cats. The
// struct-level check rejects inverted boxes before they reach storage.
type ViewportQuery struct {
	MinLat float64 `validate:"min=-90,max=90"`
	MinLon float64 `validate:"min=-180,max=180"`
	MaxLat float64 `validate:"min=-90,max=90"`
	MaxLon float64 `validate:"min=-180,max=180"`
}
