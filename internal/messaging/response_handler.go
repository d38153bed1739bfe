package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/RagePipe/internal/models"
)

// DefaultErrorMessage is sent when a hook fails.
const DefaultErrorMessage = "⚠️ Something went wrong while I was thinking. Please try again."

// ResponseAction defines a hook function that processes an incoming message.
// It receives the sender's canonical phone number, the message text and its
// timestamp, and reports whether it handled the message.
type ResponseAction func(ctx context.Context, from, responseText string, timestamp int64) (handled bool, err error)

// Recorder persists receipts and incoming messages.
type Recorder interface {
	AddReceipt(r models.Receipt) error
	AddResponse(r models.Response) error
}

type namedHook struct {
	name   string
	action ResponseAction
}

// ResponseHandler routes incoming messages through an ordered chain of hooks.
// The first hook that handles a message ends the chain.
type ResponseHandler struct {
	msgService Service
	recorder   Recorder

	mu           sync.RWMutex
	hooks        []namedHook
	errorMessage string

	wg sync.WaitGroup
}

// NewResponseHandler creates a handler for msgService. recorder may be nil.
func NewResponseHandler(msgService Service, recorder Recorder) *ResponseHandler {
	return &ResponseHandler{
		msgService:   msgService,
		recorder:     recorder,
		errorMessage: DefaultErrorMessage,
	}
}

// AddHook appends a hook to the chain.
func (rh *ResponseHandler) AddHook(name string, action ResponseAction) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.hooks = append(rh.hooks, namedHook{name: name, action: action})
	slog.Debug("ResponseHandler.AddHook: hook registered", "name", name, "position", len(rh.hooks))
}

// HookNames returns the registered hooks in chain order.
func (rh *ResponseHandler) HookNames() []string {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	names := make([]string, len(rh.hooks))
	for i, h := range rh.hooks {
		names[i] = h.name
	}
	return names
}

// SetErrorMessage sets the message sent when a hook fails.
func (rh *ResponseHandler) SetErrorMessage(message string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.errorMessage = message
}

// ProcessResponse runs the hook chain for one incoming message.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	slog.Debug("ResponseHandler.ProcessResponse: processing", "from", canonicalFrom, "body_length", len(response.Body))

	if rh.recorder != nil {
		stored := response
		stored.From = canonicalFrom
		if err := rh.recorder.AddResponse(stored); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: failed to store response", "error", err, "from", canonicalFrom)
		}
	}

	rh.mu.RLock()
	hooks := append([]namedHook(nil), rh.hooks...)
	errorMessage := rh.errorMessage
	rh.mu.RUnlock()

	for _, h := range hooks {
		handled, err := runHook(ctx, h, canonicalFrom, response)
		if err != nil {
			slog.Error("ResponseHandler.ProcessResponse: hook failed", "hook", h.name, "error", err, "from", canonicalFrom)
			if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, errorMessage); sendErr != nil {
				slog.Error("ResponseHandler.ProcessResponse: failed to send error message", "error", sendErr, "from", canonicalFrom)
			}
			return fmt.Errorf("hook %s failed: %w", h.name, err)
		}
		if handled {
			slog.Debug("ResponseHandler.ProcessResponse: handled", "hook", h.name, "from", canonicalFrom)
			return nil
		}
	}
	slog.Debug("ResponseHandler.ProcessResponse: no hook handled message", "from", canonicalFrom)
	return nil
}

func runHook(ctx context.Context, h namedHook, from string, response models.Response) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.action(ctx, from, response.Body, response.Time)
}

// Start consumes the service's responses and receipts until ctx is done or
// the channels close.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler.Start: processing messages", "hooks", rh.HookNames())

	rh.wg.Add(2)
	go func() {
		defer rh.wg.Done()
		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler.Start: responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler.Start: failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer rh.wg.Done()
		for {
			select {
			case receipt, ok := <-rh.msgService.Receipts():
				if !ok {
					return
				}
				if rh.recorder == nil {
					continue
				}
				if err := rh.recorder.AddReceipt(receipt); err != nil {
					slog.Warn("ResponseHandler.Start: failed to store receipt", "error", err, "to", receipt.To)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the loops started by Start return.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}
