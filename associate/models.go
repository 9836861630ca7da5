package associate

import "time"

// Record is one tracked associate. Stage holds the raw stage text, which may
// be a value outside the known pipeline when the source data is dirty.
type Record struct {
	ID                 string
	Name               string
	IdentificationCode string
	Stage              string
	ContributionPaid   bool
	LastUpdated        *time.Time
}

// TimelineEvent captures an immutable stage change for an associate.
type TimelineEvent struct {
	ID          int64
	AssociateID string
	Seq         int
	Type        string
	ActorID     *string
	CreatedAt   time.Time
	Payload     []byte
}

// OutboxMessage represents a transactional outbox entry.
type OutboxMessage struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// TransitionRequest asks for the associate identified by AssociateID to be
// moved to Stage.
type TransitionRequest struct {
	AssociateID string
	Stage       string
	ActorID     string
}

// ListFilters narrows List results. A Limit of zero or less returns every
// matching associate.
type ListFilters struct {
	Stage  string
	Limit  int
	Offset int
}

const (
	// TimelineStageChanged is appended for every accepted transition.
	TimelineStageChanged = "ASSOCIATE_STAGE_CHANGED"
	// OutboxTopicStageChanged is published whenever an associate changes stage.
	OutboxTopicStageChanged = "associate.stage_changed"
)
