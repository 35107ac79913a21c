package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// SlackNotifier sends notifications to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	enabled    bool
}

type slackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color     string      `json:"color,omitempty"`
	Title     string      `json:"title,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string      `json:"footer,omitempty"`
	Timestamp int64       `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier builds a SlackNotifier. An empty webhookURL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    webhookURL != "",
	}
}

// IsEnabled reports whether the Slack channel is configured.
func (s *SlackNotifier) IsEnabled() bool { return s.enabled }

// SendTradeAlert posts a trade-placed alert.
func (s *SlackNotifier) SendTradeAlert(stationCode, bracketName string, edge, pModel, pMarket float64, size decimal.Decimal) error {
	if !s.enabled {
		return nil
	}
	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color: "#36a64f",
			Title: fmt.Sprintf("📈 Trade placed: %s %s", stationCode, bracketName),
			Fields: []slackField{
				{Title: "Edge", Value: fmt.Sprintf("%.1f%%", edge*100), Short: true},
				{Title: "Model P", Value: fmt.Sprintf("%.3f", pModel), Short: true},
				{Title: "Market P", Value: fmt.Sprintf("%.3f", pMarket), Short: true},
				{Title: "Size", Value: "$" + size.StringFixed(2), Short: true},
			},
			Footer:    "dynamic-trader",
			Timestamp: time.Now().Unix(),
		}},
	}
	return s.sendMessage(msg)
}

// SendDailySummary posts a per-station daily resolution summary.
func (s *SlackNotifier) SendDailySummary(stationCode string, resolved, wins int, netPnL decimal.Decimal) error {
	if !s.enabled {
		return nil
	}
	color, emoji := "#36a64f", "📊"
	if netPnL.IsNegative() {
		color, emoji = "#e74c3c", "⚠️"
	}
	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color: color,
			Title: fmt.Sprintf("%s Daily summary: %s", emoji, stationCode),
			Fields: []slackField{
				{Title: "Resolved", Value: fmt.Sprintf("%d", resolved), Short: true},
				{Title: "Wins", Value: fmt.Sprintf("%d", wins), Short: true},
				{Title: "Net P&L", Value: "$" + netPnL.StringFixed(2), Short: true},
			},
			Footer:    "dynamic-trader - daily summary",
			Timestamp: time.Now().Unix(),
		}},
	}
	return s.sendMessage(msg)
}

// SendError posts an error alert.
func (s *SlackNotifier) SendError(component, message string) error {
	if !s.enabled {
		return nil
	}
	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color: "#e74c3c",
			Title: "🚨 Error",
			Fields: []slackField{
				{Title: "Component", Value: component, Short: true},
				{Title: "Message", Value: message, Short: false},
			},
			Footer:    "dynamic-trader - error",
			Timestamp: time.Now().Unix(),
		}},
	}
	return s.sendMessage(msg)
}

// SendStartup posts a process-start alert.
func (s *SlackNotifier) SendStartup(bankroll decimal.Decimal, stationCount int) error {
	if !s.enabled {
		return nil
	}
	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color: "#36a64f",
			Title: "🚀 dynamic-trader started",
			Fields: []slackField{
				{Title: "Bankroll", Value: "$" + bankroll.StringFixed(2), Short: true},
				{Title: "Stations", Value: fmt.Sprintf("%d", stationCount), Short: true},
			},
			Footer:    "dynamic-trader - startup",
			Timestamp: time.Now().Unix(),
		}},
	}
	return s.sendMessage(msg)
}

// SendShutdown posts a process-exit alert.
func (s *SlackNotifier) SendShutdown(reason string) error {
	if !s.enabled {
		return nil
	}
	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color:     "#95a5a6",
			Title:     "⏹️ dynamic-trader shutdown",
			Fields:    []slackField{{Title: "Reason", Value: reason, Short: false}},
			Footer:    "dynamic-trader - shutdown",
			Timestamp: time.Now().Unix(),
		}},
	}
	return s.sendMessage(msg)
}

func (s *SlackNotifier) sendMessage(msg slackMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
