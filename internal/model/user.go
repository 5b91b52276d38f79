// Package model defines the data structures used throughout the application.
package model

import "time"

// Activity levels accepted by the onboarding profile.
const (
	ActivitySedentary  = "sedentary"
	ActivityLight      = "light"
	ActivityModerate   = "moderate"
	ActivityActive     = "active"
	ActivityVeryActive = "very_active"
)

// User is a registered account plus its onboarding profile.
//
// Accounts are created either with email + password or through GitHub
// OAuth. GitHub-only accounts have an empty PasswordHash and a non-nil
// GitHubID; password login is impossible for them until a password is set.
//
// WHY POINTERS FOR THE PROFILE FIELDS?
// A freshly registered user has no age, height or goal yet. nil means
// "not provided", which is different from 0 and serialises as JSON null.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"` // never leaves the server
	Name          *string   `json:"name"`
	Gender        *string   `json:"gender"`
	ActivityLevel *string   `json:"activity_level"`
	Age           *int      `json:"age"`
	HeightCm      *float64  `json:"height_cm"`
	WeightKg      *float64  `json:"weight_kg"`
	KcalGoal      *int      `json:"kcal_goal"`
	IsActive      bool      `json:"is_active"`
	IsOnboarded   bool      `json:"is_onboarded"`
	GitHubID      *int64    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProfileUpdate is a partial update of the onboarding profile.
// A nil field leaves the stored value unchanged.
type ProfileUpdate struct {
	Name          *string
	Gender        *string
	ActivityLevel *string
	Age           *int
	HeightCm      *float64
	WeightKg      *float64
	KcalGoal      *int
	IsOnboarded   *bool
}

// Apply copies every non-nil field of p onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = p.Name
	}
	if p.Gender != nil {
		u.Gender = p.Gender
	}
	if p.ActivityLevel != nil {
		u.ActivityLevel = p.ActivityLevel
	}
	if p.Age != nil {
		u.Age = p.Age
	}
	if p.HeightCm != nil {
		u.HeightCm = p.HeightCm
	}
	if p.WeightKg != nil {
		u.WeightKg = p.WeightKg
	}
	if p.KcalGoal != nil {
		u.KcalGoal = p.KcalGoal
	}
	if p.IsOnboarded != nil {
		u.IsOnboarded = *p.IsOnboarded
	}
}
