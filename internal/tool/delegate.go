package tool

import (
	"context"
	"fmt"

	"github.com/owulveryck/nexushealth/internal/a2a"
)

// DelegateDescriptionFormat wraps a remote capability description.
const DelegateDescriptionFormat = "Use this tool for tasks related to: %s. The input should be a clear and specific question for this agent."

// Invoker is the part of a transport client a delegate needs.
type Invoker interface {
	Endpoint() string
	Invoke(ctx context.Context, capability string, msg *a2a.Message) (*a2a.Message, error)
}

// Delegate forwards queries to one remote capability.
type Delegate struct {
	core
	binding Binding
}

// NewDelegate binds capability c hosted behind inv. Transport errors are
// returned unchanged so callers can match them with errors.Is and errors.As.
func NewDelegate(inv Invoker, c a2a.Capability) *Delegate {
	d := &Delegate{
		binding: Binding{
			Name:        c.Name,
			Description: fmt.Sprintf(DelegateDescriptionFormat, c.Description),
			Endpoint:    inv.Endpoint(),
			Capability:  c.Name,
		},
	}
	d.core = core{
		name:        d.binding.Name,
		description: d.binding.Description,
		run: func(ctx context.Context, query string) (string, error) {
			msg := a2a.NewTextMessage(a2a.RoleUser, query)
			msg.ContextID = ContextID(ctx)
			reply, err := inv.Invoke(ctx, c.Name, msg)
			if err != nil {
				return "", err
			}
			return reply.Text(), nil
		},
	}
	return d
}

// Binding returns the record describing where the delegate points.
func (d *Delegate) Binding() Binding { return d.binding }
