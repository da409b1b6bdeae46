// Package routing maps a detected emotion to a suggested follow-up activity.
package routing

import "github.com/ZanzyTHEbar/serenity/serenity/analysis"

// Redirect names a client-side activity suggestion. The zero value means none.
type Redirect string

const (
	None       Redirect = ""
	Gratitude  Redirect = "gratitude"
	Journal    Redirect = "journal"
	Relaxation Redirect = "relaxation"
	Breathing  Redirect = "breathing"
	Therapist  Redirect = "therapist"
)

var table = map[analysis.Emotion]Redirect{
	analysis.Happy:   Gratitude,
	analysis.Sad:     Journal,
	analysis.Stress:  Relaxation,
	analysis.Anxiety: Relaxation,
	analysis.Anger:   Breathing,
	analysis.Crisis:  Therapist,
}

// Route looks up the redirect for emotion. Neutral and unknown emotions map to None.
func Route(emotion analysis.Emotion) Redirect {
	return table[emotion]
}

// Ptr returns nil for None so callers can serialize the redirect as a nullable field.
func (r Redirect) Ptr() *string {
	if r == None {
		return nil
	}
	s := string(r)
	return &s
}
