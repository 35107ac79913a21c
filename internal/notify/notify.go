// Package notify implements the notifier (C12): best-effort Slack/Discord
// alerts for trades, errors, daily summaries, and process lifecycle events.
// Never gates a trading decision; send failures are logged and swallowed.
//
// Adapted near-verbatim from gopher-lab-kalshi-go's
// cmd/dualside-bot/production/notify package (notifier.go/slack.go/
// discord.go), re-fielded here for bracket trades (station, bracket name,
// edge, size) instead of Kalshi yes/no contract fills.
package notify

import (
	"log"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/metrics"
)

// Notifier fans a notification out to every enabled channel.
type Notifier struct {
	slack   *SlackNotifier
	discord *DiscordNotifier
}

// New builds a Notifier. An empty webhook URL disables that channel.
func New(slackWebhookURL, discordWebhookURL string) *Notifier {
	n := &Notifier{
		slack:   NewSlackNotifier(slackWebhookURL),
		discord: NewDiscordNotifier(discordWebhookURL),
	}
	if n.slack.IsEnabled() {
		log.Println("[Notify] Slack notifications enabled")
	}
	if n.discord.IsEnabled() {
		log.Println("[Notify] Discord notifications enabled")
	}
	return n
}

// IsEnabled reports whether any channel is configured.
func (n *Notifier) IsEnabled() bool {
	return n.slack.IsEnabled() || n.discord.IsEnabled()
}

// TradeAlert reports one placed paper trade.
func (n *Notifier) TradeAlert(stationCode, bracketName string, edge, pModel, pMarket float64, size decimal.Decimal) {
	if n.slack.IsEnabled() {
		if err := n.slack.SendTradeAlert(stationCode, bracketName, edge, pModel, pMarket, size); err != nil {
			log.Printf("[Notify] Slack error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("slack").Inc()
		}
	}
	if n.discord.IsEnabled() {
		if err := n.discord.SendTradeAlert(stationCode, bracketName, edge, pModel, pMarket, size); err != nil {
			log.Printf("[Notify] Discord error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("discord").Inc()
		}
	}
}

// DailySummary reports one station's resolved trades for a day.
func (n *Notifier) DailySummary(stationCode string, resolved, wins int, netPnL decimal.Decimal) {
	if n.slack.IsEnabled() {
		if err := n.slack.SendDailySummary(stationCode, resolved, wins, netPnL); err != nil {
			log.Printf("[Notify] Slack error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("slack").Inc()
		}
	}
	if n.discord.IsEnabled() {
		if err := n.discord.SendDailySummary(stationCode, resolved, wins, netPnL); err != nil {
			log.Printf("[Notify] Discord error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("discord").Inc()
		}
	}
}

// Error reports an engine-level error of any kind.
func (n *Notifier) Error(component, message string) {
	if n.slack.IsEnabled() {
		if err := n.slack.SendError(component, message); err != nil {
			log.Printf("[Notify] Slack error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("slack").Inc()
		}
	}
	if n.discord.IsEnabled() {
		if err := n.discord.SendError(component, message); err != nil {
			log.Printf("[Notify] Discord error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("discord").Inc()
		}
	}
}

// Startup reports process start.
func (n *Notifier) Startup(bankroll decimal.Decimal, stationCount int) {
	if n.slack.IsEnabled() {
		if err := n.slack.SendStartup(bankroll, stationCount); err != nil {
			log.Printf("[Notify] Slack error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("slack").Inc()
		}
	}
	if n.discord.IsEnabled() {
		if err := n.discord.SendStartup(bankroll, stationCount); err != nil {
			log.Printf("[Notify] Discord error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("discord").Inc()
		}
	}
}

// Shutdown reports process exit.
func (n *Notifier) Shutdown(reason string) {
	if n.slack.IsEnabled() {
		if err := n.slack.SendShutdown(reason); err != nil {
			log.Printf("[Notify] Slack error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("slack").Inc()
		}
	}
	if n.discord.IsEnabled() {
		if err := n.discord.SendShutdown(reason); err != nil {
			log.Printf("[Notify] Discord error: %v", err)
			metrics.Default().NotifyFailures.WithLabelValues("discord").Inc()
		}
	}
}
