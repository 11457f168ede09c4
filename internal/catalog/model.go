package catalog

import "time"

// Round enumerates the game round a question belongs to.
type Round string

const (
	// RoundFirst is the opening round.
	RoundFirst Round = "first"
	// RoundSecond is the double-value round.
	RoundSecond Round = "second"
	// RoundFinal is the final round; daily challenges draw only from it.
	RoundFinal Round = "final"
)

// OverrideOrigin records how an accepted answer phrasing entered the system.
type OverrideOrigin string

const (
	// OriginCurator marks an override added by admin curation.
	OriginCurator OverrideOrigin = "curator"
	// OriginDispute marks an override created by a successful user dispute.
	OriginDispute OverrideOrigin = "dispute"
)

// Category is a named grouping of questions.
type Category struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Question is an immutable trivia item produced by the ingestion pipeline.
// This engine only reads it.
type Question struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID      int64      `gorm:"column:category_id;not null;index"`
	Text            string     `gorm:"column:question_text;type:text;not null"`
	CanonicalAnswer string     `gorm:"column:canonical_answer;type:text;not null"`
	Value           int        `gorm:"column:value;not null"`
	KnowledgeTag    string     `gorm:"column:knowledge_tag;size:64"`
	Round           Round      `gorm:"column:round;size:16;not null;index"`
	EpisodeID       string     `gorm:"column:episode_id;size:64;index"`
	AirDate         *time.Time `gorm:"column:air_date"`
	TripleStumper   bool       `gorm:"column:triple_stumper;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "questions"
}

// AnswerOverride is an additional accepted phrasing layered on top of a
// question's canonical answer. Append-only; the canonical answer never
// mutates.
type AnswerOverride struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	QuestionID   int64          `gorm:"column:question_id;not null;index"`
	AcceptedText string         `gorm:"column:accepted_text;type:text;not null"`
	CreatedBy    string         `gorm:"column:created_by;size:190"`
	Origin       OverrideOrigin `gorm:"column:origin;size:16;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AnswerOverride) TableName() string {
	return "answer_overrides"
}
