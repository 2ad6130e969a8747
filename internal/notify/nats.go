// Package notify publishes terminal job outcomes to NATS so other services
// can react to finished analyses without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/healthstat/internal/model"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "healthstat.jobs"

// Message is the payload published for each finished job.
type Message struct {
	JobID      int64     `json:"job_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewMessage builds the notification for o. Results are not included;
// consumers fetch them from the API or the result store.
func NewMessage(o *model.Outcome) Message {
	return Message{
		JobID:      o.JobID,
		Kind:       o.Kind,
		Status:     o.Status,
		Error:      o.Error,
		RunID:      o.RunID,
		FinishedAt: o.FinishedAt,
	}
}

// Subject returns the subject an outcome with the given status is
// published on.
func Subject(prefix, status string) string {
	return prefix + "." + status
}

// Publisher sends outcome notifications over a NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials the NATS server at url. Reconnects are retried forever.
func Connect(url, subject string) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("healthstat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn { return p.nc }

// PublishOutcome publishes o on <subject>.<status>.
func (p *Publisher) PublishOutcome(_ context.Context, o *model.Outcome) error {
	data, err := json.Marshal(NewMessage(o))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.nc.Publish(Subject(p.subject, o.Status), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe calls handler for every notification matching status, or for
// all statuses when status is empty.
func (p *Publisher) Subscribe(status string, handler func(Message)) (*nats.Subscription, error) {
	subject := Subject(p.subject, "*")
	if status != "" {
		subject = Subject(p.subject, status)
	}
	return p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var m Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			return
		}
		handler(m)
	})
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
