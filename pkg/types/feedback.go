package types

import "time"

// Feedback types sent by the frontend. The store does not enforce them.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// TimestampLayout is the ISO-8601 layout used for the Timestamp column
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FeedbackSubmission is a user judgment about a technique's classification
type FeedbackSubmission struct {
	Technique    string `json:"technique"`
	STRIDE       string `json:"stride"`
	CIA          string `json:"cia"`
	FeedbackType string `json:"feedback_type"` // "thumbs_up" or "thumbs_down"
	SID          string `json:"sid"`           // User SID, usually sent with thumbs_down
	Comment      string `json:"comment"`
}

// FeedbackRecord is one persisted feedback entry
type FeedbackRecord struct {
	ID           string    `json:"id"`
	Technique    string    `json:"technique"`
	STRIDE       string    `json:"stride"`
	CIA          string    `json:"cia"`
	FeedbackType string    `json:"feedback_type"`
	SID          string    `json:"sid"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"timestamp"`
}

// Timestamp returns the creation time in the stored ISO-8601 form
func (r FeedbackRecord) Timestamp() string {
	return r.CreatedAt.Format(TimestampLayout)
}

// Fields returns the record keyed by the backing file's header names.
// It is meant for the HTTP serialization edge only.
func (r FeedbackRecord) Fields() map[string]string {
	return map[string]string{
		"ID":            r.ID,
		"Technique":     r.Technique,
		"STRIDE":        r.STRIDE,
		"CIA":           r.CIA,
		"Feedback Type": r.FeedbackType,
		"SID":           r.SID,
		"Comment":       r.Comment,
		"Timestamp":     r.Timestamp(),
	}
}

// FeedbackStats summarizes the stored feedback
type FeedbackStats struct {
	Total       int            `json:"total"`
	ThumbsUp    int            `json:"thumbs_up"`
	ThumbsDown  int            `json:"thumbs_down"`
	Other       int            `json:"other"`
	ByTechnique map[string]int `json:"by_technique"`
}
