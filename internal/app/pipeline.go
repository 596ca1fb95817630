package app

import (
	"context"
	"fmt"

	"tokenbot/internal/format"
	"tokenbot/internal/model"
	"tokenbot/internal/notifier"
	kit "tokenbot/internal/transport"
)

type metadataFetcher interface {
	Fetch(ctx context.Context, uri string) *model.Metadata
}

type deliverer interface {
	Deliver(ctx context.Context, ref notifier.Ref, msg model.Message, dests []kit.ChatTarget) []notifier.Outcome
}

// pipeline is the per-record handler: enrich, format, deliver.
type pipeline struct {
	enrich  metadataFetcher // nil disables enrichment
	deliver deliverer
	dests   []kit.ChatTarget
}

// Handle fails only when no destination received the message, so the
// watcher logs it against the record.
func (p *pipeline) Handle(ctx context.Context, ev model.Event) error {
	var md *model.Metadata
	if p.enrich != nil {
		md = p.enrich.Fetch(ctx, ev.URI())
	}
	msg := format.Format(ev, md)
	outs := p.deliver.Deliver(ctx, notifier.Ref{VID: ev.VID, Mint: ev.Mint}, msg, p.dests)
	if notifier.AllFailed(outs) {
		return fmt.Errorf("delivery failed for all %d destinations: %w", len(outs), outs[0].Err)
	}
	return nil
}
