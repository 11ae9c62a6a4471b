package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityKind identifies a behavioral event emitted by a visitor
type ActivityKind string

const (
	ActivityPropertyView      ActivityKind = "property_view"
	ActivitySavedProperty     ActivityKind = "saved_property"
	ActivityMortgageCalcUse   ActivityKind = "mortgage_calc_use"
	ActivityContactForm       ActivityKind = "contact_form"
	ActivityPhoneCallRequest  ActivityKind = "phone_call_request"
	ActivityEmailOpen         ActivityKind = "email_open"
	ActivityEmailClick        ActivityKind = "email_click"
	ActivityReturnVisit       ActivityKind = "return_visit"
	ActivityPropertyInquiry   ActivityKind = "property_inquiry"
	ActivityAgentChat         ActivityKind = "agent_chat"
	ActivityVirtualTour       ActivityKind = "virtual_tour"
	ActivityPriceAlertSignup  ActivityKind = "price_alert_signup"
	ActivityNewsletterSignup  ActivityKind = "newsletter_signup"
	ActivityProfileCompletion ActivityKind = "profile_completion"
)

// activityWeights maps each kind to its nominal score contribution
var activityWeights = map[ActivityKind]int{
	ActivityPropertyView:      5,
	ActivitySavedProperty:     10,
	ActivityMortgageCalcUse:   15,
	ActivityContactForm:       25,
	ActivityPhoneCallRequest:  30,
	ActivityEmailOpen:         3,
	ActivityEmailClick:        5,
	ActivityReturnVisit:       8,
	ActivityPropertyInquiry:   25,
	ActivityAgentChat:         20,
	ActivityVirtualTour:       15,
	ActivityPriceAlertSignup:  12,
	ActivityNewsletterSignup:  8,
	ActivityProfileCompletion: 10,
}

// registeredOnlyKinds require an authenticated identity (no guest submissions)
var registeredOnlyKinds = map[ActivityKind]bool{
	ActivitySavedProperty:    true,
	ActivityPropertyInquiry:  true,
	ActivityPhoneCallRequest: true,
	ActivityAgentChat:        true,
	ActivityPriceAlertSignup: true,
}

// Weight returns the nominal score weight for the kind (0 if unknown)
func (k ActivityKind) Weight() int {
	return activityWeights[k]
}

// Valid reports whether the kind is one of the known behavioral kinds
func (k ActivityKind) Valid() bool {
	_, ok := activityWeights[k]
	return ok
}

// RequiresRegistration reports whether anonymous identities may submit this kind
func (k ActivityKind) RequiresRegistration() bool {
	return registeredOnlyKinds[k]
}

// Activity is a single recorded behavioral event. Immutable once recorded;
// profiles hold an append-only ordered list of these.
type Activity struct {
	Kind      ActivityKind      `bson:"kind" json:"kind"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"`
	SubjectID string            `bson:"subjectId,omitempty" json:"subject_id,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// ContactInfo holds the contact channels captured for a lead so far
type ContactInfo struct {
	Email string `bson:"email,omitempty" json:"email,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
}

// HasChannel reports whether at least one reachable contact channel is known
func (c ContactInfo) HasChannel() bool {
	return c.Email != "" || c.Phone != ""
}

// LeadCategory classifies a lead by score
type LeadCategory string

const (
	CategoryCold LeadCategory = "COLD" // [0,49]
	CategoryWarm LeadCategory = "WARM" // [50,79]
	CategoryHot  LeadCategory = "HOT"  // [80,150]
)

// Score bounds and category boundaries
const (
	ScoreMin  = 0
	ScoreBase = 50
	ScoreMax  = 150

	WarmThreshold = 50
	HotThreshold  = 80
)

// CategoryForScore maps a clamped score to its category.
// Boundaries are contiguous and cover the whole [0,150] range.
func CategoryForScore(score int) LeadCategory {
	switch {
	case score >= HotThreshold:
		return CategoryHot
	case score >= WarmThreshold:
		return CategoryWarm
	default:
		return CategoryCold
	}
}

// LeadProfile is the durable per-identity record nurtured by the engine.
// The score is always derivable purely from Activities and the current time.
type LeadProfile struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	IdentityID      string             `bson:"identityId" json:"identity_id"`
	Contact         ContactInfo        `bson:"contact" json:"contact"`
	Score           int                `bson:"score" json:"score"`
	Category        LeadCategory       `bson:"category" json:"category"`
	Activities      []Activity         `bson:"activities" json:"activities"`
	AssignedAgentID string             `bson:"assignedAgentId,omitempty" json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"created_at"`
	LastActivityAt  time.Time          `bson:"lastActivityAt" json:"last_activity_at"`
}

// NewLeadProfile creates a fresh profile at the base score
func NewLeadProfile(identityID string, now time.Time) *LeadProfile {
	return &LeadProfile{
		IdentityID:     identityID,
		Score:          ScoreBase,
		Category:       CategoryForScore(ScoreBase),
		Activities:     make([]Activity, 0),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// LeadProfileResponse is the API representation of a profile
type LeadProfileResponse struct {
	IdentityID      string       `json:"identity_id"`
	Contact         ContactInfo  `json:"contact"`
	Score           int          `json:"score"`
	Category        LeadCategory `json:"category"`
	ActivityCount   int          `json:"activity_count"`
	AssignedAgentID string       `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	LastActivityAt  time.Time    `json:"last_activity_at"`
}

// ToResponse converts a profile to its API representation
func (p *LeadProfile) ToResponse() *LeadProfileResponse {
	return &LeadProfileResponse{
		IdentityID:      p.IdentityID,
		Contact:         p.Contact,
		Score:           p.Score,
		Category:        p.Category,
		ActivityCount:   len(p.Activities),
		AssignedAgentID: p.AssignedAgentID,
		CreatedAt:       p.CreatedAt,
		LastActivityAt:  p.LastActivityAt,
	}
}
