package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// Provider is a named Client in a Chain.
type Provider struct {
	Name   string
	Client Client
}

// Chain tries its providers in order and returns the first completion.
// It stops early once the caller's context is done.
type Chain struct {
	providers []Provider
	logger    *logging.Logger
}

// NewChain drops providers with a nil client. It panics when none remain.
func NewChain(logger *logging.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Chain{logger: logger}
	for _, p := range providers {
		if p.Client != nil {
			c.providers = append(c.providers, p)
		}
	}
	if len(c.providers) == 0 {
		panic("llm: chain needs at least one provider")
	}
	return c
}

// Names lists the providers in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

func (c *Chain) Complete(ctx context.Context, req Request) (Completion, error) {
	var errs []error
	for i, p := range c.providers {
		if i > 0 && ctx.Err() != nil {
			break
		}
		out, err := p.Client.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("llm completed on fallback provider", "provider", p.Name, "attempt", i+1)
			}
			return out, nil
		}
		c.logger.Warn("llm provider failed", "provider", p.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return Completion{}, fmt.Errorf("llm: all providers failed: %w", errors.Join(errs...))
}
