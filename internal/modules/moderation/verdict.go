package moderation

import (
	"encoding/json"
	"fmt"
)

// Verdict is the typed moderation answer. RewrittenText falls back to the
// submitted text when the service sent none.
type Verdict struct {
	Abusive       bool
	RewrittenText string
}

type rawVerdict struct {
	FinalDecision *int `json:"final_decision"`
	Result        *struct {
		RewrittenText *string `json:"rewritten_text"`
	} `json:"result"`
}

// InterpretVerdict parses an untrusted moderation response. It never fails
// closed: a missing decision or broken body yields a non-abusive verdict
// together with an error the caller can count.
func InterpretVerdict(body []byte, original string) (Verdict, error) {
	clean := Verdict{Abusive: false, RewrittenText: original}

	var raw rawVerdict
	if err := json.Unmarshal(body, &raw); err != nil {
		return clean, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if raw.FinalDecision == nil {
		return clean, ErrMissingDecision
	}

	v := Verdict{Abusive: *raw.FinalDecision == 1, RewrittenText: original}
	if raw.Result != nil && raw.Result.RewrittenText != nil {
		v.RewrittenText = *raw.Result.RewrittenText
	}
	return v, nil
}
