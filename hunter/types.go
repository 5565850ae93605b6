// Package hunter implements the mission evaluation engine: per mission,
// it extracts comparable content from the target URL according to the
// mission type, applies user-defined replacement rules, compares the
// result against the stored content, persists the new state and reports
// the outcome.
package hunter

import (
	"fmt"
	"time"
)

// Type selects the extraction strategy for a mission. The set is closed;
// it is fixed at mission creation and immutable afterwards, because
// changing it would change what "no change" means for stored content.
type Type string

const (
	// TypeHead compares response status and headers, not the body.
	TypeHead Type = "head"
	// TypeHTML compares the body normalized as markdown.
	TypeHTML Type = "html"
	// TypeJS compares the body as opaque text. No JavaScript runs.
	TypeJS Type = "js"
	// TypeText compares the raw body text.
	TypeText Type = "txt"
)

// ParseType validates a type string coming from config or the API.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeHead, TypeHTML, TypeJS, TypeText:
		return t, nil
	}
	return "", fmt.Errorf("unknown mission type %q (want head, html, js or txt)", s)
}

// ContentReplace is one text rewrite rule applied to extracted content
// before comparison. Source is a regular expression, Flags a normalized
// subset of "gimu", ReplaceValue a template that may reference capture
// groups (Go regexp Expand syntax, e.g. $1 or ${1}).
type ContentReplace struct {
	Source       string `json:"source"`
	Flags        string `json:"flags"`
	ReplaceValue string `json:"replaceValue"`
}

// Mission is one monitoring task. Type and URL are immutable after
// creation; the engine only ever writes LastContent.
type Mission struct {
	ID             string           `json:"id"`
	Issuer         string           `json:"issuer"`
	Index          int              `json:"index"`
	Type           Type             `json:"type"`
	URL            string           `json:"url"`
	ContentReplace []ContentReplace `json:"contentReplace,omitempty"`
	// LastContent is the post-transform content observed at the previous
	// successful evaluation. nil before the first evaluation.
	LastContent *string   `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Status is the terminal state of one evaluation.
type Status string

const (
	// StatusUnchanged: content matches the stored state (or first run).
	StatusUnchanged Status = "unchanged"
	// StatusChanged: content differs and the new state was persisted.
	StatusChanged Status = "changed"
	// StatusFailed: extraction or transformation failed; stored state
	// was left untouched.
	StatusFailed Status = "failed"
	// StatusSkipped: the mission was deleted while the evaluation was in
	// flight; the result was discarded. Not an error.
	StatusSkipped Status = "skipped"
)

// Outcome is the transient result of one evaluation. It is reported to
// the notifier by Dispatch and never persisted.
type Outcome struct {
	Status  Status
	Mission *Mission
	Err     error
}
