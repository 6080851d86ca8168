// Package speech reads price estimates aloud. Announcements run in the
// background; a slow or failing speech API never delays a prediction.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"tripfare/internal/prediction"
)

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config controls where audio goes once synthesized.
type Config struct {
	OutputPath string        // file the audio is written to
	PlayerCmd  string        // optional command run with OutputPath appended, e.g. "afplay"
	Timeout    time.Duration // bound on synthesis plus playback
}

// CommandRunner runs an external program. Replaced in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Option configures an Announcer.
type Option func(*Announcer)

// WithCommandRunner replaces how the player command is executed.
func WithCommandRunner(r CommandRunner) Option {
	return func(a *Announcer) {
		a.run = r
	}
}

// Announcer synthesizes announcements asynchronously. At most one
// synthesis is in flight; while it runs only the newest request is kept
// and older ones are dropped. A nil Synthesizer makes every Announce a
// no-op.
type Announcer struct {
	synth  Synthesizer
	cfg    Config
	logger *slog.Logger
	run    CommandRunner

	// mu guards speaking and next.
	mu       sync.Mutex
	speaking bool
	next     *string
	pending  sync.WaitGroup
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(synth Synthesizer, cfg Config, logger *slog.Logger, opts ...Option) *Announcer {
	if cfg.OutputPath == "" {
		cfg.OutputPath = "taxi_price_prediction.mp3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Announcer{synth: synth, cfg: cfg, logger: logger, run: runCommand}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Enabled reports whether announcements are produced.
func (a *Announcer) Enabled() bool {
	return a.synth != nil
}

// PriceSentence is the sentence shown and spoken for an estimate.
func PriceSentence(price float64) string {
	return fmt.Sprintf("The estimated taxi price is $%.2f", price)
}

// Announce starts speaking text and returns immediately. If an
// announcement is already in progress, text replaces any queued one.
func (a *Announcer) Announce(text string) {
	if !a.Enabled() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speaking {
		if a.next != nil {
			a.logger.Debug("speech announcement superseded", "text", *a.next)
		}
		a.next = &text
		return
	}
	a.speaking = true
	a.pending.Add(1)
	go a.drain(text)
}

// drain speaks text, then whatever was queued meanwhile, until the queue
// is empty.
func (a *Announcer) drain(text string) {
	defer a.pending.Done()
	for {
		if err := a.speak(text); err != nil {
			a.logger.Warn("speech announcement failed", "error", err)
		}

		a.mu.Lock()
		if a.next == nil {
			a.speaking = false
			a.mu.Unlock()
			return
		}
		text = *a.next
		a.next = nil
		a.mu.Unlock()
	}
}

// ObservePrediction announces a served prediction. It has the shape of a
// prediction.Observer.
func (a *Announcer) ObservePrediction(r prediction.Result) {
	a.Announce(PriceSentence(r.EstimatedPrice))
}

// Wait blocks until in-flight announcements finish.
func (a *Announcer) Wait() {
	a.pending.Wait()
}

func (a *Announcer) speak(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()

	audio, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	if err := os.WriteFile(a.cfg.OutputPath, audio, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	a.logger.Info("speech audio written", "path", a.cfg.OutputPath, "bytes", len(audio))

	fields := strings.Fields(a.cfg.PlayerCmd)
	if len(fields) == 0 {
		return nil
	}
	args := append(fields[1:], a.cfg.OutputPath)
	if err := a.run(ctx, fields[0], args...); err != nil {
		return fmt.Errorf("play audio with %s: %w", fields[0], err)
	}
	return nil
}
