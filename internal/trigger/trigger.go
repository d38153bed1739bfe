// Package trigger turns classified chat behaviour into rage increments.
//
// An Adapter exists per category. The Judge asks the LLM which categories a
// message falls into, and the Dispatcher routes the resulting decisions to the
// adapters.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/RagePipe/internal/rage"
)

// Category is the kind of behaviour that raises rage.
type Category string

const (
	CategoryProvocation Category = "provocation"
	CategoryTease       Category = "tease"
	CategoryAnnoy       Category = "annoy"
)

// Categories lists every known category.
var Categories = []Category{CategoryProvocation, CategoryTease, CategoryAnnoy}

// Intensity grades a provocation. Other categories ignore it.
type Intensity string

const (
	IntensityMild     Intensity = "mild"
	IntensityModerate Intensity = "moderate"
	IntensitySevere   Intensity = "severe"
)

// ErrUnknownCategory is returned by ParseCategory for unrecognised input.
var ErrUnknownCategory = errors.New("unknown trigger category")

// MsgNoConversation is returned when the conversation id cannot be resolved.
const MsgNoConversation = "unable to resolve conversation"

// ParseCategory maps a case-insensitive name onto a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// NormalizeIntensity maps s onto a known intensity. Empty or unknown values
// become IntensityModerate.
func NormalizeIntensity(s string) Intensity {
	switch i := Intensity(strings.ToLower(strings.TrimSpace(s))); i {
	case IntensityMild, IntensityModerate, IntensitySevere:
		return i
	default:
		return IntensityModerate
	}
}

// Amount returns the configured increment for category and intensity.
func Amount(cfg rage.Config, category Category, intensity Intensity) float64 {
	r := cfg.Rage
	switch category {
	case CategoryProvocation:
		switch NormalizeIntensity(string(intensity)) {
		case IntensityMild:
			return r.ProvocationMild
		case IntensitySevere:
			return r.ProvocationSevere
		default:
			return r.ProvocationModerate
		}
	case CategoryTease:
		return r.TeaseAmount
	case CategoryAnnoy:
		return r.AnnoyAmount
	default:
		return 0
	}
}

// Adder is the slice of rage.Engine an adapter needs.
type Adder interface {
	Config() rage.Config
	AddFrom(conversationID string, source rage.Source, amount float64) (rage.State, error)
}

// Adapter applies one category of trigger to the engine.
type Adapter struct {
	engine   Adder
	category Category
}

// NewAdapter returns an adapter for category.
func NewAdapter(engine Adder, category Category) *Adapter {
	return &Adapter{engine: engine, category: category}
}

// Category returns the adapter's category.
func (a *Adapter) Category() Category {
	return a.category
}

// Execute adds the configured amount for the adapter's category. It reports
// success and a short human-readable result.
func (a *Adapter) Execute(conversationID string, intensity Intensity) (bool, string) {
	if conversationID == "" {
		slog.Warn("Adapter.Execute: missing conversation id", "category", a.category)
		return false, MsgNoConversation
	}
	intensity = NormalizeIntensity(string(intensity))
	amount := Amount(a.engine.Config(), a.category, intensity)

	st, err := a.engine.AddFrom(conversationID, rage.Source(a.category), amount)
	if err != nil {
		slog.Error("Adapter.Execute: failed to add rage", "category", a.category, "conversation", conversationID, "error", err)
		return false, fmt.Sprintf("failed to record %s: %v", a.category, err)
	}
	slog.Info("Adapter.Execute: trigger applied",
		"category", a.category, "intensity", intensity, "conversation", conversationID, "amount", amount, "value", st.Value)
	return true, resultMessage(a.category, amount)
}

func resultMessage(c Category, amount float64) string {
	switch c {
	case CategoryProvocation:
		return fmt.Sprintf("provocation detected, rage +%.0f", amount)
	case CategoryTease:
		return fmt.Sprintf("teased, rage +%.0f", amount)
	case CategoryAnnoy:
		return fmt.Sprintf("annoyed, rage +%.0f", amount)
	default:
		return fmt.Sprintf("rage +%.0f", amount)
	}
}
