package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/goyalvivek7/salesh-auto/internal/outreach"
)

// WhatsAppConfig holds configuration to initialise the WhatsApp client.
type WhatsAppConfig struct {
	StorePath string
	LogLevel  string
}

// WhatsApp wraps a WhatsMeow device session. It implements
// outreach.Transport for outbound sends and outreach.OnlineChecker for
// account lookups, and feeds inbound replies and delivery receipts to
// registered handlers.
type WhatsApp struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	onReply   func(ctx context.Context, fromPhone, text string)
	onReceipt func(ctx context.Context, providerMessageID string, read bool)
}

// NewWhatsApp creates a WhatsApp client backed by an SQLite session store.
func NewWhatsApp(ctx context.Context, cfg WhatsAppConfig, logger *slog.Logger) (*WhatsApp, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}
	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	w := &WhatsApp{
		client: client,
		logger: logger.With("component", "whatsapp"),
	}
	client.AddEventHandler(w.handleEvent)
	return w, nil
}

// SetReplyHandler registers the callback for inbound text messages.
func (w *WhatsApp) SetReplyHandler(fn func(ctx context.Context, fromPhone, text string)) {
	w.onReply = fn
}

// SetReceiptHandler registers the callback for delivery receipts.
// read is true for read receipts, false for plain delivery.
func (w *WhatsApp) SetReceiptHandler(fn func(ctx context.Context, providerMessageID string, read bool)) {
	w.onReceipt = fn
}

// Start connects the client and handles the login/QR pairing flow.
func (w *WhatsApp) Start(ctx context.Context) error {
	if w.client.Store.ID == nil {
		w.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					w.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					w.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp client: %w", err)
	}
	w.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the client.
func (w *WhatsApp) Close() {
	if w.client != nil {
		w.client.Disconnect()
	}
}

// Send implements outreach.Transport. The destination is an E.164 or
// digits-only phone number.
func (w *WhatsApp) Send(ctx context.Context, out outreach.Outbound) outreach.SendResult {
	if !w.client.IsLoggedIn() {
		return outreach.SendResult{
			Status: outreach.SendSkipped,
			Err:    errors.New("whatsapp session not paired"),
		}
	}

	digits := digitsOnly(out.To)
	if digits == "" {
		return outreach.SendResult{
			Status: outreach.SendFailed,
			Err:    fmt.Errorf("destination %q has no digits", out.To),
		}
	}
	jid := types.NewJID(digits, types.DefaultUserServer)

	resp, err := w.client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(out.Body),
	})
	if err != nil {
		return outreach.SendResult{Status: outreach.SendFailed, Err: fmt.Errorf("send text: %w", err)}
	}
	w.logger.Debug("whatsapp message sent", "to", digits, "message_id", out.MessageID)
	return outreach.SendResult{Status: outreach.SendSent, ProviderMessageID: string(resp.ID)}
}

// OnWhatsApp implements outreach.OnlineChecker.
func (w *WhatsApp) OnWhatsApp(ctx context.Context, phones []string) (map[string]bool, error) {
	if !w.client.IsLoggedIn() {
		return nil, errors.New("whatsapp session not paired")
	}
	responses, err := w.client.IsOnWhatsApp(phones)
	if err != nil {
		return nil, fmt.Errorf("lookup accounts: %w", err)
	}
	result := make(map[string]bool, len(responses))
	for _, r := range responses {
		result[r.Query] = r.IsIn
	}
	return result, nil
}

func (w *WhatsApp) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		w.handleMessage(v)
	case *events.Receipt:
		w.handleReceipt(v)
	case *events.Connected:
		w.logger.Info("device connected")
	case *events.Disconnected:
		w.logger.Warn("device disconnected")
	}
}

func (w *WhatsApp) handleMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	switch {
	case msg.GetConversation() != "":
		text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		text = msg.GetExtendedTextMessage().GetText()
	default:
		w.logger.Debug("ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	w.logger.Info("received text message", "from", evt.Info.Sender.User)
	if w.onReply != nil {
		go w.onReply(context.Background(), evt.Info.Sender.User, text)
	}
}

func (w *WhatsApp) handleReceipt(evt *events.Receipt) {
	if w.onReceipt == nil {
		return
	}
	var read bool
	switch evt.Type {
	case types.ReceiptTypeRead:
		read = true
	case types.ReceiptTypeDelivered:
		read = false
	default:
		return
	}
	for _, id := range evt.MessageIDs {
		go w.onReceipt(context.Background(), string(id), read)
	}
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
