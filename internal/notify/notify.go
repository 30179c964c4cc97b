// Package notify delivers organization and agent notifications. A Dispatcher
// is handed a Message after the unit of work that produced it has committed.
package notify

import (
	"context"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

// Template keys.
const (
	TemplateOrgCampaign     = "org-campaign"
	TemplateAgentOnboarding = "agent-onboarding"
)

// Message is a notification addressed over one channel in one format.
type Message struct {
	Channel     model.Channel     `json:"channel"`
	Format      model.Format      `json:"format"`
	Address     string            `json:"address"`
	TemplateKey string            `json:"template_key"`
	Variables   map[string]string `json:"variables"`
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message) error

func (f DispatcherFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
