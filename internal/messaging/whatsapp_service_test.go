package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/RagePipe/internal/models"
	"github.com/BTreeMap/RagePipe/internal/whatsapp"
)

func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestWhatsAppService_SendMessage_Receipt(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "+1 555 123 4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	sent := mockClient.Sent()
	if len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("expected canonical recipient, got %+v", sent)
	}
	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "15551234567" || receipt.Status != models.MessageStatusSent {
			t.Errorf("unexpected receipt %+v", receipt)
		}
	default:
		t.Fatal("expected receipt, got none")
	}
}

func TestWhatsAppService_SendMessage_Failure(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	mockClient.Err = errSendFailed
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); !errors.Is(err, errSendFailed) {
		t.Fatalf("expected send error, got %v", err)
	}
	receipt := <-svc.Receipts()
	if receipt.Status != models.MessageStatusFailed {
		t.Errorf("expected failed receipt, got %s", receipt.Status)
	}
}

func TestWhatsAppService_SendMessage_InvalidRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.SendMessage(context.Background(), "123", "hello"); err == nil {
		t.Error("expected error for short number")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Receipts(); ok {
		t.Error("expected receipts channel closed")
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "late"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestWhatsAppService_IncomingMessage(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	text := "you are slow"
	sender := types.NewJID("15551234567", types.DefaultUserServer)
	ts := time.Unix(1700000000, 0)

	svc.handleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: sender},
			Timestamp:     ts,
		},
		Message: &waE2E.Message{Conversation: &text},
	})

	select {
	case resp := <-svc.Responses():
		if resp.From != "+15551234567" || resp.Body != text || resp.Time != ts.Unix() {
			t.Errorf("unexpected response %+v", resp)
		}
	default:
		t.Fatal("expected forwarded response")
	}
}

func TestWhatsAppService_IgnoresOwnAndGroupMessages(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	text := "hi"
	sender := types.NewJID("15551234567", types.DefaultUserServer)
	for _, src := range []types.MessageSource{
		{Sender: sender, IsFromMe: true},
		{Sender: sender, IsGroup: true},
	} {
		svc.handleEvent(&events.Message{Info: types.MessageInfo{MessageSource: src}, Message: &waE2E.Message{Conversation: &text}})
	}
	svc.handleEvent(&events.Message{Info: types.MessageInfo{MessageSource: types.MessageSource{Sender: sender}}, Message: &waE2E.Message{}})

	select {
	case resp := <-svc.Responses():
		t.Errorf("expected nothing forwarded, got %+v", resp)
	default:
	}
}

func TestWhatsAppService_Receipts(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	src := types.MessageSource{Sender: types.NewJID("15551234567", types.DefaultUserServer)}
	svc.handleEvent(&events.Receipt{MessageSource: src, Type: events.ReceiptTypeRead, Timestamp: time.Unix(10, 0)})
	svc.handleEvent(&events.Receipt{MessageSource: src, Type: events.ReceiptTypeReadSelf, Timestamp: time.Unix(11, 0)})

	receipt := <-svc.Receipts()
	if receipt.Status != models.MessageStatusRead || receipt.To != "+15551234567" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	select {
	case r := <-svc.Receipts():
		t.Errorf("self read receipt should be ignored, got %+v", r)
	default:
	}
}
