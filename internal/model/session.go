package model

import "time"

type Status string

const (
	Active    Status = "active"
	Exhausted Status = "exhausted"
)

// State is the lifecycle position of a session. Terminated has no stored
// document, so it is only ever reported for a missing session.
type State string

const (
	StateActive     State = "active"
	StateExhausted  State = "exhausted"
	StateTerminated State = "terminated"
)

// CallParams is the dispatch request as it was received.
type CallParams struct {
	To         string `json:"to"`
	Text       string `json:"text"`
	Loop       int    `json:"loop"`
	RoundRobin bool   `json:"round_robin"`
}

type Session struct {
	ID         string     `json:"id"`
	CallParams CallParams `json:"call_params"`
	ToList     []string   `json:"to_list"`
	Status     Status     `json:"status"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Session) State() State {
	if s == nil {
		return StateTerminated
	}
	if len(s.ToList) == 0 {
		return StateExhausted
	}
	return StateActive
}

// Clone returns a copy that shares no slices with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.ToList = append([]string(nil), s.ToList...)
	if c.ToList == nil {
		c.ToList = []string{}
	}
	return &c
}
