package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/RagePipe/internal/models"
)

type sentMessage struct {
	to   string
	body string
}

// mockService is an in-memory Service for handler tests.
type mockService struct {
	mu        sync.Mutex
	sent      []sentMessage
	sendErr   error
	receipts  chan models.Receipt
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{
		receipts:  make(chan models.Receipt, 10),
		responses: make(chan models.Response, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{to: to, body: body})
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }

func (m *mockService) Stop() error {
	close(m.receipts)
	close(m.responses)
	return nil
}

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// memoryRecorder records receipts and responses.
type memoryRecorder struct {
	mu        sync.Mutex
	receipts  []models.Receipt
	responses []models.Response
	err       error
}

func (r *memoryRecorder) AddReceipt(rc models.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.receipts = append(r.receipts, rc)
	return nil
}

func (r *memoryRecorder) AddResponse(rs models.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.responses = append(r.responses, rs)
	return nil
}

func (r *memoryRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts), len(r.responses)
}

var errSendFailed = errors.New("send failed")
