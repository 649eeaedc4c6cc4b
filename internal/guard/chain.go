package guard

import (
	"github.com/rs/zerolog"
)

// Observer is told about every stage decision.
type Observer interface {
	ObserveGuard(stage string, rejected bool)
}

// Chain evaluates stages in order. The first rejection short-circuits the
// rest.
type Chain struct {
	stages   []Stage
	log      *zerolog.Logger
	observer Observer
}

// NewChain builds a chain from stages in evaluation order. Nil stages are
// skipped so disabled guards can be passed through as is.
func NewChain(logger *zerolog.Logger, observer Observer, stages ...Stage) *Chain {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Chain{log: logger, observer: observer}
	for _, s := range stages {
		if s != nil {
			c.stages = append(c.stages, s)
		}
	}
	return c
}

// Stages returns the names of the configured stages in order.
func (c *Chain) Stages() []string {
	names := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return names
}

// Evaluate runs the stages and returns the first rejection, or nil.
func (c *Chain) Evaluate(req *Request) *Rejection {
	for _, s := range c.stages {
		rej := s.Check(req)
		if c.observer != nil {
			c.observer.ObserveGuard(s.Name(), rej != nil)
		}
		if rej != nil {
			// Policy rejections are expected traffic.
			c.log.Debug().
				Str("stage", s.Name()).
				Str("method", req.Method).
				Str("path", req.Path).
				Str("client_ip", req.ClientIP).
				Str("reason", rej.Message).
				Msg("request rejected")
			return rej
		}
	}
	return nil
}
