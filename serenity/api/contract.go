// Package api defines the JSON turn-processing contract consumed by clients:
// the request and response shapes, their JSON schemas and validation.
package api

import (
	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness"
)

// Request is one user message.
type Request struct {
	Message  string `json:"message" jsonschema:"description=Free-text user message, may be empty"`
	Identity string `json:"identity" jsonschema:"description=Caller-supplied conversation key"`
}

// Response is the result of one processed turn. Redirect and ContactPath are
// null when unset.
type Response struct {
	Reply       string  `json:"reply"`
	Emotion     string  `json:"emotion" jsonschema:"enum=happy,enum=sad,enum=stress,enum=anxiety,enum=anger,enum=crisis,enum=neutral"`
	Sentiment   string  `json:"sentiment" jsonschema:"enum=positive,enum=negative,enum=neutral"`
	Redirect    *string `json:"redirect" jsonschema:"oneof_type=string;null"`
	Crisis      bool    `json:"crisis"`
	ContactPath *string `json:"contact_path" jsonschema:"oneof_type=string;null"`
}

// FromTurnResult converts a pipeline result into the wire shape.
func FromTurnResult(res harness.TurnResult) Response {
	out := Response{
		Reply:     res.Reply,
		Emotion:   string(res.Emotion.Emotion),
		Sentiment: string(res.Sentiment.Label),
		Redirect:  res.Redirect.Ptr(),
		Crisis:    res.Crisis,
	}
	if res.Crisis && res.ContactPath != "" {
		path := res.ContactPath
		out.ContactPath = &path
	}
	return out
}
