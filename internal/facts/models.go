// Package facts stores extracted user facts with near-duplicate merging
// and periodic index compaction.
package facts

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for fact operations.
var (
	// ErrFactNotFound indicates no fact record exists for the id.
	ErrFactNotFound = errors.New("fact not found")

	// ErrInvalidFact indicates a fact failing validation.
	ErrInvalidFact = errors.New("invalid fact")

	// ErrInvalidCategory indicates an unknown fact category.
	ErrInvalidCategory = errors.New("invalid fact category")
)

// Category classifies a fact.
type Category string

// Fact categories.
const (
	CategoryPersonalInfo Category = "personal_info"
	CategoryPreference   Category = "preference"
	CategoryHabit        Category = "habit"
	CategoryGoal         Category = "goal"
	CategoryRelationship Category = "relationship"
	CategoryOther        Category = "other"
)

// Categories lists every valid category.
func Categories() []Category {
	return []Category{
		CategoryPersonalInfo,
		CategoryPreference,
		CategoryHabit,
		CategoryGoal,
		CategoryRelationship,
		CategoryOther,
	}
}

// IsValidCategory reports whether c names a known category.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryPersonalInfo, CategoryPreference, CategoryHabit,
		CategoryGoal, CategoryRelationship, CategoryOther:
		return true
	}
	return false
}

// FactRecord is one extracted fact about a user.
//
// Invariant: within a category no two records embed with cosine
// similarity above the dedup threshold — near-duplicates are merged on
// write, keeping the higher-confidence text and the most recent source.
type FactRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Fact       string    `json:"fact"`
	Category   Category  `json:"category"`
	SourceText string    `json:"source_text,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the fields required before a record enters the ledger.
func (r *FactRecord) Validate() error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidFact)
	}
	if r.Fact == "" {
		return fmt.Errorf("%w: fact text is required", ErrInvalidFact)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidFact)
	}
	if !IsValidCategory(r.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0, 1], got %f", ErrInvalidFact, r.Confidence)
	}
	return nil
}

// FactHit is one ranked fact returned by a search.
type FactHit struct {
	Fact       *FactRecord `json:"fact"`
	Similarity float64     `json:"similarity"`
}
