package notify

import (
	"fmt"
	"strings"

	"kalshi-trader/internal/domain"
)

// Message is a rendered notification.
type Message struct {
	Title string
	Body  string
	Color int
}

// Embed colors.
const (
	ColorInfo    = 0x3498db
	ColorSuccess = 0x2ecc71
	ColorWarning = 0xf1c40f
	ColorLoss    = 0xe74c3c
)

func startupMessage(s Startup) Message {
	kinds := make([]string, len(s.Strategies))
	for i, k := range s.Strategies {
		kinds[i] = string(k)
	}
	mode := "LIVE"
	if s.DryRun {
		mode = "DRY RUN"
	}
	return Message{
		Title: "Trader started (" + mode + ")",
		Body: fmt.Sprintf("Balance: %s\nStrategies: %s\nOpen positions: %d",
			s.Balance, strings.Join(kinds, ", "), s.Open),
		Color: ColorInfo,
	}
}

func entryMessage(sig domain.Signal, exec *domain.Execution) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", displayTitle(sig.Title, sig.Ticker))
	fmt.Fprintf(&b, "Buy %s %d @ %d¢ (target %d¢)\n", strings.ToUpper(string(exec.Side)), exec.FilledCount, exec.AvgFillPrice, sig.TargetPrice)
	fmt.Fprintf(&b, "Cost: %s  Slippage: %.1f%%", exec.Cost(), exec.SlippagePct)
	switch {
	case sig.Reversion != nil:
		fmt.Fprintf(&b, "\n%d small trades, %.0f%% YES, move %+.0f¢",
			sig.Reversion.SmallTrades, sig.Reversion.YesRatio*100, sig.Reversion.PriceMove)
	case sig.Implied != nil:
		fmt.Fprintf(&b, "\n%d outcomes sum %.2f (%+.2f)",
			sig.Implied.Outcomes, sig.Implied.ProbabilitySum, sig.Implied.Deviation)
	case sig.Mention != nil:
		fmt.Fprintf(&b, "\n%s, %.1fh to event, event vol %d", sig.Mention.Category, sig.Mention.HoursToEvent, sig.Mention.EventVolume24h)
	}
	title := fmt.Sprintf("%s entry: %s", sig.Kind, sig.Ticker)
	if exec.Simulated {
		title = "[DRY] " + title
	}
	return Message{Title: title, Body: b.String(), Color: ColorSuccess}
}

func skippedMessage(sig domain.Signal, reason string) Message {
	return Message{
		Title: fmt.Sprintf("%s skipped: %s", sig.Kind, sig.Ticker),
		Body:  fmt.Sprintf("%s\nTarget %s %d¢\nReason: %s", displayTitle(sig.Title, sig.Ticker), strings.ToUpper(string(sig.Side)), sig.TargetPrice, reason),
		Color: ColorWarning,
	}
}

func restingMessage(sig domain.Signal, order RestingOrder) Message {
	return Message{
		Title: fmt.Sprintf("%s resting: %s", sig.Kind, sig.Ticker),
		Body: fmt.Sprintf("%s\nBuy %s %d @ %d¢ (order %s)",
			displayTitle(sig.Title, sig.Ticker), strings.ToUpper(string(sig.Side)), order.Count, order.Price, order.OrderID),
		Color: ColorInfo,
	}
}

func closedMessage(pos domain.Position) Message {
	color := ColorSuccess
	if pos.RealizedPnL < 0 {
		color = ColorLoss
	}
	body := fmt.Sprintf("%s\n%s %d @ %d¢ -> %d¢\nP&L: %s (%.0f%%)",
		displayTitle(pos.Title, pos.Ticker), strings.ToUpper(string(pos.Side)), pos.FillCount,
		pos.EntryPrice, pos.ExitPrice, pos.RealizedPnL, pos.ROI(pos.RealizedPnL))
	if pos.Result != "" {
		body += "\nResult: " + strings.ToUpper(pos.Result)
	}
	return Message{
		Title: fmt.Sprintf("%s %s: %s", pos.Kind, pos.Status, pos.Ticker),
		Body:  body,
		Color: color,
	}
}

func displayTitle(title, ticker string) string {
	if title == "" {
		return ticker
	}
	return title
}
