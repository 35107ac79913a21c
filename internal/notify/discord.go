package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// DiscordNotifier sends notifications to a Discord incoming webhook.
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
	enabled    bool
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title     string              `json:"title,omitempty"`
	Color     int                 `json:"color,omitempty"`
	Fields    []discordEmbedField `json:"fields,omitempty"`
	Footer    *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp string              `json:"timestamp,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	discordGreen = 0x36a64f
	discordRed   = 0xe74c3c
	discordGray  = 0x95a5a6
)

// NewDiscordNotifier builds a DiscordNotifier. An empty webhookURL disables it.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    webhookURL != "",
	}
}

// IsEnabled reports whether the Discord channel is configured.
func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) footer(text string) *discordEmbedFooter {
	return &discordEmbedFooter{Text: text}
}

// SendTradeAlert posts a trade-placed alert.
func (d *DiscordNotifier) SendTradeAlert(stationCode, bracketName string, edge, pModel, pMarket float64, size decimal.Decimal) error {
	if !d.enabled {
		return nil
	}
	msg := discordMessage{Embeds: []discordEmbed{{
		Title: fmt.Sprintf("Trade placed: %s %s", stationCode, bracketName),
		Color: discordGreen,
		Fields: []discordEmbedField{
			{Name: "Edge", Value: fmt.Sprintf("%.1f%%", edge*100), Inline: true},
			{Name: "Model P", Value: fmt.Sprintf("%.3f", pModel), Inline: true},
			{Name: "Market P", Value: fmt.Sprintf("%.3f", pMarket), Inline: true},
			{Name: "Size", Value: "$" + size.StringFixed(2), Inline: true},
		},
		Footer:    d.footer("dynamic-trader"),
		Timestamp: time.Now().Format(time.RFC3339),
	}}}
	return d.sendMessage(msg)
}

// SendDailySummary posts a per-station daily resolution summary.
func (d *DiscordNotifier) SendDailySummary(stationCode string, resolved, wins int, netPnL decimal.Decimal) error {
	if !d.enabled {
		return nil
	}
	color := discordGreen
	if netPnL.IsNegative() {
		color = discordRed
	}
	msg := discordMessage{Embeds: []discordEmbed{{
		Title: "Daily summary: " + stationCode,
		Color: color,
		Fields: []discordEmbedField{
			{Name: "Resolved", Value: fmt.Sprintf("%d", resolved), Inline: true},
			{Name: "Wins", Value: fmt.Sprintf("%d", wins), Inline: true},
			{Name: "Net P&L", Value: "$" + netPnL.StringFixed(2), Inline: true},
		},
		Footer:    d.footer("dynamic-trader - daily summary"),
		Timestamp: time.Now().Format(time.RFC3339),
	}}}
	return d.sendMessage(msg)
}

// SendError posts an error alert.
func (d *DiscordNotifier) SendError(component, message string) error {
	if !d.enabled {
		return nil
	}
	msg := discordMessage{Embeds: []discordEmbed{{
		Title: "Error",
		Color: discordRed,
		Fields: []discordEmbedField{
			{Name: "Component", Value: component, Inline: true},
			{Name: "Message", Value: message, Inline: false},
		},
		Footer:    d.footer("dynamic-trader - error"),
		Timestamp: time.Now().Format(time.RFC3339),
	}}}
	return d.sendMessage(msg)
}

// SendStartup posts a process-start alert.
func (d *DiscordNotifier) SendStartup(bankroll decimal.Decimal, stationCount int) error {
	if !d.enabled {
		return nil
	}
	msg := discordMessage{Embeds: []discordEmbed{{
		Title: "dynamic-trader started",
		Color: discordGreen,
		Fields: []discordEmbedField{
			{Name: "Bankroll", Value: "$" + bankroll.StringFixed(2), Inline: true},
			{Name: "Stations", Value: fmt.Sprintf("%d", stationCount), Inline: true},
		},
		Footer:    d.footer("dynamic-trader - startup"),
		Timestamp: time.Now().Format(time.RFC3339),
	}}}
	return d.sendMessage(msg)
}

// SendShutdown posts a process-exit alert.
func (d *DiscordNotifier) SendShutdown(reason string) error {
	if !d.enabled {
		return nil
	}
	msg := discordMessage{Embeds: []discordEmbed{{
		Title:     "dynamic-trader shutdown",
		Color:     discordGray,
		Fields:    []discordEmbedField{{Name: "Reason", Value: reason, Inline: false}},
		Footer:    d.footer("dynamic-trader - shutdown"),
		Timestamp: time.Now().Format(time.RFC3339),
	}}}
	return d.sendMessage(msg)
}

func (d *DiscordNotifier) sendMessage(msg discordMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	resp, err := d.httpClient.Post(d.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}
