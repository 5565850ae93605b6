package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/veillant/huntd/hunter"
)

// Stdout writes notification events as JSON lines to an io.Writer
// (default os.Stdout). Useful for development and for piping into a
// downstream chat-delivery process.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) NotifyChange(_ context.Context, issuer string, mission *hunter.Mission, changed bool) error {
	if !changed {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(newEvent("change", issuer, mission, nil))
}

func (s *Stdout) NotifyError(_ context.Context, issuer string, mission *hunter.Mission, evalErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(newEvent("error", issuer, mission, evalErr))
}
