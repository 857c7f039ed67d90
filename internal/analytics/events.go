// Package analytics collects usage events from the rank checker and the
// college predictor, ships them through Kafka and aggregates them for the
// dashboard API.
package analytics

import "time"

type EventType string

const (
	EventRankCheck  EventType = "rank_check"
	EventPrediction EventType = "prediction"
)

// Event is implemented by every payload the collector accepts.
type Event interface {
	EventKey() string
}

// RankEvent records the outcome of ranking one keyword.
type RankEvent struct {
	Type        EventType `json:"type"`
	Keyword     string    `json:"keyword"`
	Primary     string    `json:"primary"`
	PrimaryRank *int      `json:"primary_rank"`
	Sites       int       `json:"sites"`
	SitesRanked int       `json:"sites_ranked"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

func (e RankEvent) EventKey() string { return e.Keyword }

// PredictionEvent records one college prediction and its bucket sizes.
type PredictionEvent struct {
	Type      EventType `json:"type"`
	Dataset   string    `json:"dataset"`
	Rank      int       `json:"rank"`
	Quota     string    `json:"quota"`
	SeatType  string    `json:"seat_type"`
	Category  string    `json:"category"`
	Safe      int       `json:"safe"`
	Moderate  int       `json:"moderate"`
	Ambitious int       `json:"ambitious"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e PredictionEvent) EventKey() string { return e.Dataset }

type envelope struct {
	Type EventType `json:"type"`
}
