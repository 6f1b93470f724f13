package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentdash/internal/chat"
	"agentdash/internal/market"
)

// Chat sends one message through the relay and prints the reply. With
// History set it prints the stored conversation instead.
func (a *App) Chat(ctx context.Context, opts ChatOptions) error {
	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if opts.Clear {
		if err := sess.conv.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "conversation cleared")
		return nil
	}
	if opts.History {
		a.printMessages(sess.conv.Messages())
		return nil
	}
	if opts.Message == "" {
		return errors.New("a message is required")
	}

	var selected *market.Asset
	if opts.AssetID != "" {
		dash := a.newDashboard(sess, nil, a.newClient())
		if err := a.loadSnapshot(ctx, dash, false); err != nil {
			a.Logger.Warn().Err(err).Msg("market data unavailable; sending without asset context")
		}
		if asset, ok := dash.Asset(opts.AssetID); ok {
			selected = &asset
		} else {
			a.Logger.Warn().Str("asset", opts.AssetID).Msg("asset not in snapshot; sending without asset context")
		}
	}

	reply, err := sess.relay.Send(ctx, opts.Message, selected)
	if err != nil {
		return err
	}
	a.printMessages([]chat.Message{reply})
	return nil
}

func (a *App) printMessages(messages []chat.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(a.Out, "no messages yet")
		return
	}
	for _, m := range messages {
		ref := ""
		if m.AssetID != "" {
			ref = " [" + m.AssetID + "]"
		}
		fmt.Fprintf(a.Out, "%s %s%s: %s\n",
			m.Timestamp.Local().Format(time.Kitchen),
			m.Role,
			ref,
			sanitizeInline(m.Content),
		)
	}
}
