package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/RagePipe/internal/models"
	"github.com/BTreeMap/RagePipe/internal/twiliowhatsapp"
)

// TwilioService implements Service on top of the Twilio REST API. Incoming
// messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client twiliowhatsapp.Sender
	*eventQueues
}

// NewTwilioService wraps client, which may be a real Twilio client or a mock.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client, eventQueues: newEventQueues()}
}

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(twiliowhatsapp.StripAddress(recipient))
}

// Start is a no-op; Twilio pushes messages to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the receipt and response channels.
func (s *TwilioService) Stop() error {
	s.close()
	slog.Info("TwilioService.Stop: stopped")
	return nil
}

// SendMessage sends a message via Twilio and emits a receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonical, body); err != nil {
		s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusFailed, Time: time.Now().Unix()})
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel for incoming messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them
// on the Responses channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.TwilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := twiliowhatsapp.StripAddress(r.FormValue("From"))
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.TwilioWebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	if !s.emitResponse(models.Response{From: from, Body: body, Time: time.Now().Unix()}) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	slog.Debug("TwilioService.TwilioWebhookHandler: inbound message queued", "from", from, "body_length", len(body))

	// An empty TwiML response; replies are sent through the REST API.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}
