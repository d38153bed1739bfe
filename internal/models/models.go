// Package models defines the data structures shared across RagePipe modules:
// message receipts and responses, rage journal events, and the JSON envelope
// returned by the HTTP API.
package models

import (
	"errors"
	"math"
	"time"
)

// Validation errors for API requests.
var (
	ErrEmptyConversation = errors.New("conversation cannot be empty")
	ErrMissingValue      = errors.New("value is required")
	ErrInvalidValue      = errors.New("value must be a finite number")
	ErrEmptyCategory     = errors.New("category is required")
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt is a delivery/read receipt for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming chat message.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// RageEvent is one journaled rage mutation.
type RageEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Op             string    `json:"op"`
	Source         string    `json:"source"`
	Delta          float64   `json:"delta"`
	Value          float64   `json:"value"`
	Level          int       `json:"level"`
	PreviousLevel  int       `json:"previous_level"`
	CreatedAt      time.Time `json:"created_at"`
}

// SetRageRequest is the payload of POST /rage/{conversation}/set. Value is a
// pointer so that a missing field can be told apart from zero.
type SetRageRequest struct {
	Value *float64 `json:"value"`
}

// Validate checks that a finite value was given.
func (r *SetRageRequest) Validate() error {
	if r.Value == nil {
		return ErrMissingValue
	}
	if math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
		return ErrInvalidValue
	}
	return nil
}

// AddRageRequest is the payload of POST /rage/{conversation}/add.
type AddRageRequest struct {
	Category  string `json:"category"`
	Intensity string `json:"intensity,omitempty"`
}

// Validate checks that a category was given.
func (r *AddRageRequest) Validate() error {
	if r.Category == "" {
		return ErrEmptyCategory
	}
	return nil
}

// ConversationRage pairs a conversation id with its rage state.
type ConversationRage struct {
	ConversationID string      `json:"conversation_id"`
	State          interface{} `json:"state"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}
