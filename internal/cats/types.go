package cats

import (
	"time"

	"github.com/whiskermap/go-catmap-backend/internal/core"
)

// Moderation lifecycle states. A cat is created PENDING and transitions
// exactly once to APPROVED or REJECTED.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Moderation decisions accepted by Moderate.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Cat represents the item stored in the cats DynamoDB table.
// geohash is always derived from (lat, lon) at submit time; treat_count
// and visit_count are denormalized from the ledgers and rebuildable.
type Cat struct {
	CatID       string       `dynamodbav:"cat_id"` // PK
	Status      string       `dynamodbav:"status"`
	Geohash     string       `dynamodbav:"geohash"`
	Lat         float64      `dynamodbav:"lat"`
	Lon         float64      `dynamodbav:"lon"`
	Name        string       `dynamodbav:"name,omitempty"`
	Description string       `dynamodbav:"description,omitempty"`
	SubmittedBy string       `dynamodbav:"submitted_by,omitempty"`
	TreatCount  int          `dynamodbav:"treat_count"`
	VisitCount  int          `dynamodbav:"visit_count"`
	CreatedAt   core.TimeKey `dynamodbav:"created_at"` // pending-index SK
	UpdatedAt   time.Time    `dynamodbav:"updated_at"`
}

// Submission carries caller input for a new cat.
type Submission struct {
	Lat         float64
	Lon         float64
	Name        string
	Description string
	SubmittedBy string
}
