// Package clip names rendered clip files and tracks the ones awaiting publication.
//
// A rendered clip is stored as "<account>,<part>,<content>.mp4" in the output
// directory. Ref is the parsed form of that name.
package clip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ext is the container extension of rendered clips.
const Ext = ".mp4"

// ErrMalformedName indicates a file name that does not encode a clip reference.
var ErrMalformedName = errors.New("clip: malformed file name")

// NameError reports why a file name was rejected.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("clip: malformed file name %q: %s", e.Name, e.Reason)
}

func (e *NameError) Unwrap() error { return ErrMalformedName }

// Ref identifies one part of one source video rendered for one account.
type Ref struct {
	AccountID string
	// Part is the zero-based position of the clip within its source video.
	Part      int
	ContentID string
}

// Validate checks that the reference can round-trip through a file name.
func (r Ref) Validate() error {
	if r.AccountID == "" {
		return &NameError{Name: r.String(), Reason: "empty account id"}
	}
	if r.ContentID == "" {
		return &NameError{Name: r.String(), Reason: "empty content id"}
	}
	if r.Part < 0 {
		return &NameError{Name: r.String(), Reason: "negative part index"}
	}
	for _, field := range []string{r.AccountID, r.ContentID} {
		if strings.ContainsAny(field, `,/\`) {
			return &NameError{Name: r.String(), Reason: fmt.Sprintf("%q contains a reserved character", field)}
		}
	}
	return nil
}

// Filename returns the base file name for the clip.
func (r Ref) Filename() string {
	return r.AccountID + "," + strconv.Itoa(r.Part) + "," + r.ContentID + Ext
}

// Label returns the one-based part number shown to viewers.
func (r Ref) Label() int { return r.Part + 1 }

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.AccountID, r.ContentID, r.Part)
}

// ParseFilename parses a base file name produced by Ref.Filename.
func ParseFilename(name string) (Ref, error) {
	stem, ok := strings.CutSuffix(name, Ext)
	if !ok {
		return Ref{}, &NameError{Name: name, Reason: "missing " + Ext + " extension"}
	}
	fields := strings.Split(stem, ",")
	if len(fields) != 3 {
		return Ref{}, &NameError{Name: name, Reason: fmt.Sprintf("expected 3 comma-separated fields, got %d", len(fields))}
	}
	part, err := strconv.Atoi(fields[1])
	if err != nil {
		return Ref{}, &NameError{Name: name, Reason: "part index is not a number"}
	}
	ref := Ref{AccountID: fields[0], Part: part, ContentID: fields[2]}
	if err := ref.Validate(); err != nil {
		return Ref{}, &NameError{Name: name, Reason: err.(*NameError).Reason}
	}
	return ref, nil
}

// Rendered is a clip file on disk waiting to be published.
type Rendered struct {
	Ref
	Path string
}

// Options controls how a source video is turned into clips.
type Options struct {
	Captions     bool
	Overlay      bool
	ClipDuration time.Duration
}

// Request asks the production pipeline to render every part of one source video.
type Request struct {
	AccountID string
	ContentID string
	Options   Options
}
