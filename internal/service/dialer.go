package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/LeventeLantos/automatic-calling/internal/client"
	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/LeventeLantos/automatic-calling/internal/session"
)

const StatusCompleted = "completed"

type CallPlacer interface {
	PlaceCall(ctx context.Context, call client.CallRequest) (callID string, err error)
}

// DispatchError means the provider refused or failed to place a call. The
// destination has already been consumed from the session queue.
type DispatchError struct {
	SessionID   string
	Destination string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("place call to %s for session %s: %v", e.Destination, e.SessionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL       string
	From          string
	AckDigit      string
	Prompt        string
	Language      string
	InputTimeoutS int
}

// Result is the informational body returned to webhook callers.
type Result struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
}

// InputResult carries either a script to play back or an informational result.
type InputResult struct {
	Result
	NCCO []client.Action
}

type Dialer struct {
	sessions *session.Manager
	placer   CallPlacer
	cfg      Config
}

func NewDialer(sessions *session.Manager, placer CallPlacer, cfg Config) *Dialer {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AckDigit == "" {
		cfg.AckDigit = "1"
	}
	return &Dialer{sessions: sessions, placer: placer, cfg: cfg}
}

// Trigger starts a retry cycle and dials the first destination.
func (d *Dialer) Trigger(ctx context.Context, params model.CallParams) (Result, error) {
	id, err := d.sessions.Create(ctx, params)
	if err != nil {
		return Result{}, err
	}
	return d.dialNext(ctx, id, true)
}

// HandleEvent advances the cycle when the previous call leg completed.
func (d *Dialer) HandleEvent(ctx context.Context, id, status string) (Result, error) {
	if status != StatusCompleted {
		return Result{Message: fmt.Sprintf("unknown event: %s %s", id, status), SessionID: id}, nil
	}
	return d.dialNext(ctx, id, false)
}

// HandleInput acknowledges the session when digits matches the acknowledge
// digit and returns the stored message for playback. Any other input waits
// for the completed event to dial the next destination.
func (d *Dialer) HandleInput(ctx context.Context, id, digits string) (InputResult, error) {
	s, err := d.sessions.Read(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return InputResult{Result: notFound(id)}, nil
	}
	if err != nil {
		return InputResult{}, err
	}

	if digits != d.cfg.AckDigit {
		slog.Info("input did not acknowledge", "session_id", id, "digits", digits)
		return InputResult{Result: Result{Message: "next call: " + id, SessionID: id}}, nil
	}

	if err := d.sessions.Acknowledge(ctx, id); err != nil {
		return InputResult{}, err
	}
	return InputResult{
		Result: Result{Message: "acknowledged: " + id, SessionID: id},
		NCCO:   client.Talk(s.CallParams.Text, d.cfg.Language),
	}, nil
}

func (d *Dialer) dialNext(ctx context.Context, id string, initial bool) (Result, error) {
	next, ok, err := d.sessions.Advance(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return notFound(id), nil
	case errors.Is(err, session.ErrConflict):
		return Result{Message: "session already advanced: " + id, SessionID: id}, nil
	case err != nil:
		return Result{}, err
	}

	if !ok {
		if initial {
			return Result{Message: "no calls to make: " + id, SessionID: id}, nil
		}
		return Result{Message: "no more calls: " + id, SessionID: id}, nil
	}

	callID, err := d.placer.PlaceCall(ctx, client.CallRequest{
		To:   next,
		From: d.cfg.From,
		NCCO: client.AckScript(client.ScriptOptions{
			Prompt:        d.cfg.Prompt,
			Language:      d.cfg.Language,
			InputTimeoutS: d.cfg.InputTimeoutS,
			InputEventURL: d.callbackURL("input", id),
		}),
		EventURL: d.callbackURL("event", id),
	})
	if err != nil {
		return Result{}, &DispatchError{SessionID: id, Destination: next, Err: err}
	}

	slog.Info("call placed", "session_id", id, "destination", next, "call_id", callID)
	return Result{Message: "create call: " + callID, SessionID: id, CallID: callID}, nil
}

func (d *Dialer) callbackURL(kind, id string) string {
	return d.cfg.BaseURL + "/" + kind + "/" + url.PathEscape(id)
}

func notFound(id string) Result {
	return Result{Message: "session not found, the call has probably ended: " + id, SessionID: id}
}
