package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/example/bakery/internal/models"
)

// TelegramService sends staff notifications to Telegram. Each location may have its
// own chat; the admin chat is the fallback.
type TelegramService struct {
	botToken    string
	adminChatID string
	currency    string
	client      *http.Client
	log         zerolog.Logger
	apiBase     string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID, currency string, log zerolog.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		currency:    currency,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log.With().Str("component", "telegram").Logger(),
		apiBase:     "https://api.telegram.org",
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug().Msg("bot token not configured, skipping message")
		return nil
	}
	if chatID == "" {
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *TelegramService) chatFor(staffChatID string) string {
	if staffChatID != "" {
		return staffChatID
	}
	return s.adminChatID
}

// FormatPrice formats an amount with two decimals, thousand separators and currency.
func FormatPrice(amount decimal.Decimal, currency string) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}
	result.WriteString("." + frac)

	if currency != "" {
		result.WriteString(" " + currency)
	}
	return result.String()
}

// NotifyNewOrder tells the location's staff a new order needs confirming.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, event NewOrderEvent) error {
	currency := event.Currency
	if currency == "" {
		currency = s.currency
	}

	var items strings.Builder
	for i, item := range event.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&items, "%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatPrice(item.UnitPrice, currency),
			FormatPrice(lineTotal, currency),
		)
	}

	method := "Collection"
	if event.FulfillmentMethod == models.FulfillmentDelivery {
		method = "Delivery"
	}

	message := fmt.Sprintf(`<b>New order %s</b>
<b>Location:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>%s</b>, ready by %s
%s
<b>Total:</b> %s`,
		event.OrderNumber,
		html.EscapeString(event.Location),
		html.EscapeString(event.CustomerName),
		html.EscapeString(event.CustomerPhone),
		method,
		event.EstimatedReadyAt.Format("15:04"),
		items.String(),
		FormatPrice(event.Total, currency),
	)

	return s.SendMessage(ctx, s.chatFor(event.StaffChatID), strings.TrimSpace(message))
}

// NotifyStatusChanged only pings staff about cancellations; other transitions are
// staff-initiated.
func (s *TelegramService) NotifyStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	if event.NewStatus != models.StatusCancelled {
		return nil
	}

	message := fmt.Sprintf("<b>Order %s cancelled</b>\nWas: %s", event.OrderNumber, event.PreviousStatus)
	if event.Note != "" {
		message += "\nReason: " + html.EscapeString(event.Note)
	}
	return s.SendMessage(ctx, s.chatFor(event.StaffChatID), message)
}
