package penalty

import (
	"time"
)

const (
	DefaultContributorLevel = "Silver"
	UnknownEmail            = "unknown@email.com"
	DefaultRewardCategory   = "Other"
)

type Driver struct {
	PlateNo          string    `json:"plate_no"`
	OwnerName        string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	VehicleType      string    `json:"vehicle_type"`
	RegisteredAt     time.Time `json:"registered_at"`
	ContributorLevel string    `json:"contributor_level"`
	UploadCount      int       `json:"upload_count"`
}

// ContactEmail returns the driver's email or the placeholder used in notices.
func (d Driver) ContactEmail() string {
	if d.Email == nil || *d.Email == "" {
		return UnknownEmail
	}
	return *d.Email
}

type Registration struct {
	PlateNo     string  `json:"plate_no"`
	OwnerName   string  `json:"owner_name"`
	Email       *string `json:"email,omitempty"`
	VehicleType string  `json:"vehicle_type"`
}

type ViolationEvent struct {
	ID             int64         `json:"-"`
	Reference      string        `json:"id"`
	PlateNo        string        `json:"plate_no"`
	Type           string        `json:"type"`
	Label          string        `json:"label"`
	Weight         float64       `json:"weight"`
	Multiplier     float64       `json:"multiplier"`
	Points         float64       `json:"points"`
	Timestamp      time.Time     `json:"timestamp"`
	ExpiryDate     time.Time     `json:"expiry_date"`
	GeneratedEmail string        `json:"generated_email,omitempty"`
	DriverEmail    string        `json:"driver_email,omitempty"`
	PenaltySplit   *PenaltySplit `json:"penalty_split,omitempty"`
}

// IsActive reports whether the event still counts toward current points.
func (e ViolationEvent) IsActive(now time.Time) bool {
	return e.ExpiryDate.After(now)
}

type RewardSubmission struct {
	ID                int64     `json:"-"`
	PlateNo           string    `json:"plate_no"`
	Amount            float64   `json:"amount"`
	Timestamp         time.Time `json:"timestamp"`
	ViolationReported string    `json:"violation_reported,omitempty"`
}

type PenaltySplit struct {
	Government float64 `json:"government"`
	Reward     float64 `json:"reward"`
	System     float64 `json:"system"`
	Total      float64 `json:"total"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ProfileStats struct {
	ActivePoints       float64 `json:"active_points"`
	ExpiredPoints      float64 `json:"expired_points"`
	RiskLevel          string  `json:"risk_level"`
	TotalViolations    int     `json:"total_violations"`
	TotalRewards       float64 `json:"total_rewards"`
	TotalContributions int     `json:"total_contributions"`
	ContributorLevel   string  `json:"contributor_level"`
}

type ProfileCharts struct {
	PenaltyTimeline []MonthCount `json:"penalty_timeline"`
	RewardTimeline  []MonthCount `json:"reward_timeline"`
	ViolationTypes  []TypeCount  `json:"violation_types"`
	RewardTypes     []TypeCount  `json:"reward_types"`
	PointsSplit     [2]float64   `json:"points_split"`
}

type ProfileView struct {
	Profile          Driver             `json:"profile"`
	Stats            ProfileStats       `json:"stats"`
	Charts           ProfileCharts      `json:"charts"`
	RecentViolations []ViolationEvent   `json:"recent_violations"`
	RecentRewards    []RewardSubmission `json:"recent_rewards"`
}
