package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bakery/internal/models"
)

type captureWriter struct {
	messages []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func TestKafkaPublisher_KeysByOrder(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w)
	orderID := uuid.New()

	require.NoError(t, p.NotifyNewOrder(context.Background(), NewOrderEvent{OrderID: orderID, OrderNumber: "BK-1", Total: dec("22.14"), StaffChatID: "secret"}))
	require.NoError(t, p.NotifyStatusChanged(context.Background(), OrderStatusChangedEvent{OrderID: orderID, NewStatus: models.StatusCancelled}))

	require.Len(t, w.messages, 2)
	for _, msg := range w.messages {
		assert.Equal(t, orderID.String(), string(msg.Key))
	}
	assert.Equal(t, "order.created", string(w.messages[0].Headers[0].Value))
	assert.Equal(t, "order.status_changed", string(w.messages[1].Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &body))
	assert.Equal(t, "22.14", body["total"])
	assert.NotContains(t, body, "StaffChatID")
}

type failingNotifier struct{}

func (failingNotifier) NotifyNewOrder(context.Context, NewOrderEvent) error { return errors.New("down") }
func (failingNotifier) NotifyStatusChanged(context.Context, OrderStatusChangedEvent) error {
	return errors.New("down")
}

func TestNotifiers_FanOutDespiteFailures(t *testing.T) {
	rec := &recordingNotifier{}
	n := Notifiers{failingNotifier{}, rec}

	err := n.NotifyNewOrder(context.Background(), NewOrderEvent{OrderNumber: "BK-2"})
	require.Error(t, err)
	require.Len(t, rec.created, 1)
	assert.Equal(t, "BK-2", rec.created[0].OrderNumber)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "22.14 EUR", FormatPrice(dec("22.14"), "EUR"))
	assert.Equal(t, "1,250.50 EUR", FormatPrice(dec("1250.5"), "EUR"))
	assert.Equal(t, "-3.00", FormatPrice(dec("-3"), ""))
}

func TestTelegramService_RoutesToLocationChat(t *testing.T) {
	var chats []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg telegramMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		chats = append(chats, msg.ChatID)
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.Equal(t, "HTML", msg.ParseMode)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "admin-chat", "EUR", zerolog.Nop())
	svc.apiBase = srv.URL
	ctx := context.Background()

	require.NoError(t, svc.NotifyNewOrder(ctx, NewOrderEvent{OrderNumber: "BK-3", StaffChatID: "-100", Items: []EventItem{{Name: "Scone <jam>", Quantity: 2, UnitPrice: dec("1.20")}}}))
	require.NoError(t, svc.NotifyNewOrder(ctx, NewOrderEvent{OrderNumber: "BK-4"}))
	require.NoError(t, svc.NotifyStatusChanged(ctx, OrderStatusChangedEvent{OrderNumber: "BK-4", NewStatus: models.StatusAcceptedInPreparation}))
	require.NoError(t, svc.NotifyStatusChanged(ctx, OrderStatusChangedEvent{OrderNumber: "BK-4", NewStatus: models.StatusCancelled, StaffChatID: "-200"}))

	assert.Equal(t, []string{"-100", "admin-chat", "-200"}, chats)
}
