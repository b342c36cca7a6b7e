// Package payload defines the typed payload for each job category as a closed
// set. Decoding is matched exhaustively on the category so adding a category
// is a compile-time-visible change, not a string registered at runtime.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// ErrInvalidPayload is wrapped by every payload schema failure so callers can
// reject an enqueue without inspecting category-specific errors.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is implemented by each category's typed payload.
type Payload interface {
	Category() model.JobCategory
	Validate() error
}

// Recipient is one independently-retryable delivery target inside a bulk
// notification job.
type Recipient struct {
	To   string `json:"to"`
	Name string `json:"name,omitempty"`
}

// Email is the payload for email jobs. Each recipient send is independently
// retryable; retries re-enqueue only the recipients that failed.
type Email struct {
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	OrderID    string      `json:"order_id,omitempty"`
}

func (Email) Category() model.JobCategory { return model.JobCategoryEmail }

// Validate checks structure only: address syntax is the sender's concern and
// fails permanently at send time, not at enqueue time.
func (p Email) Validate() error {
	if len(p.Recipients) == 0 {
		return fmt.Errorf("%w: email requires at least one recipient", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: email subject is required", ErrInvalidPayload)
	}
	if p.Body == "" {
		return fmt.Errorf("%w: email body is required", ErrInvalidPayload)
	}
	for i := range p.Recipients {
		if strings.TrimSpace(p.Recipients[i].To) == "" {
			return fmt.Errorf("%w: recipient %d has empty address", ErrInvalidPayload, i)
		}
	}
	return nil
}

// Text message channels.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// SMS is the payload for sms jobs. Channel selects the delivery gateway;
// empty means plain SMS.
type SMS struct {
	Recipients []Recipient `json:"recipients"`
	Body       string      `json:"body"`
	Channel    string      `json:"channel,omitempty"`
	OrderID    string      `json:"order_id,omitempty"`
}

func (SMS) Category() model.JobCategory { return model.JobCategorySMS }

func (p SMS) Validate() error {
	if len(p.Recipients) == 0 {
		return fmt.Errorf("%w: sms requires at least one recipient", ErrInvalidPayload)
	}
	switch p.Channel {
	case "", ChannelSMS, ChannelWhatsApp:
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidPayload, p.Channel)
	}
	if p.Body == "" {
		return fmt.Errorf("%w: sms body is required", ErrInvalidPayload)
	}
	for i := range p.Recipients {
		if strings.TrimSpace(p.Recipients[i].To) == "" {
			return fmt.Errorf("%w: recipient %d has empty number", ErrInvalidPayload, i)
		}
	}
	return nil
}

// Inventory is the payload for asynchronous inventory jobs (deferred
// deductions, receiving follow-ups).
type Inventory struct {
	OrderID    string            `json:"order_id"`
	LocationID string            `json:"location_id"`
	Lines      []model.OrderLine `json:"lines"`
}

func (Inventory) Category() model.JobCategory { return model.JobCategoryInventory }

func (p Inventory) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: inventory job requires order_id", ErrInvalidPayload)
	}
	if p.LocationID == "" {
		return fmt.Errorf("%w: inventory job requires location_id", ErrInvalidPayload)
	}
	if len(p.Lines) == 0 {
		return fmt.Errorf("%w: inventory job requires line items", ErrInvalidPayload)
	}
	for i := range p.Lines {
		if p.Lines[i].MenuItemID == "" || p.Lines[i].Quantity <= 0 {
			return fmt.Errorf("%w: inventory line %d is malformed", ErrInvalidPayload, i)
		}
	}
	return nil
}

// Report is the payload for report generation jobs.
type Report struct {
	Kind       string `json:"kind"` // daily-sales, stock-valuation, ...
	LocationID string `json:"location_id"`
	PeriodFrom string `json:"period_from,omitempty"`
	PeriodTo   string `json:"period_to,omitempty"`
}

func (Report) Category() model.JobCategory { return model.JobCategoryReports }

func (p Report) Validate() error {
	if strings.TrimSpace(p.Kind) == "" {
		return fmt.Errorf("%w: report kind is required", ErrInvalidPayload)
	}
	if p.LocationID == "" {
		return fmt.Errorf("%w: report requires location_id", ErrInvalidPayload)
	}
	return nil
}

// Scheduled task names, the closed set of periodic maintenance jobs.
const (
	TaskLowStockScan     = "low-stock-scan"
	TaskExpiringLotsScan = "expiring-lots-scan"
	TaskReminders        = "reminders"
	TaskCleanup          = "cleanup"
)

// Scheduled is the payload for periodic scan jobs.
type Scheduled struct {
	Task       string `json:"task"`
	LocationID string `json:"location_id,omitempty"` // empty means every location
}

func (Scheduled) Category() model.JobCategory { return model.JobCategoryScheduled }

func (p Scheduled) Validate() error {
	switch p.Task {
	case TaskLowStockScan, TaskExpiringLotsScan, TaskReminders, TaskCleanup:
		return nil
	default:
		return fmt.Errorf("%w: unknown scheduled task %q", ErrInvalidPayload, p.Task)
	}
}

// Decode unmarshals and validates raw payload bytes for the given category.
// The switch is exhaustive over the closed category set.
func Decode(category model.JobCategory, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	var (
		p   Payload
		err error
	)
	switch category {
	case model.JobCategoryEmail:
		p, err = decodeInto[Email](raw)
	case model.JobCategorySMS:
		p, err = decodeInto[SMS](raw)
	case model.JobCategoryInventory:
		p, err = decodeInto[Inventory](raw)
	case model.JobCategoryReports:
		p, err = decodeInto[Report](raw)
	case model.JobCategoryScheduled:
		p, err = decodeInto[Scheduled](raw)
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidPayload, category)
	}
	if err != nil {
		return nil, err
	}
	if err = p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}

// Encode marshals a typed payload for persistence.
func Encode(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidateEmailAddress reports whether addr parses as an RFC 5322 address.
// Failures are permanent: retrying a malformed address cannot succeed.
func ValidateEmailAddress(addr string) error {
	if _, err := mail.ParseAddress(addr); err != nil {
		return model.Permanent(fmt.Errorf("malformed email address %q: %w", addr, err))
	}
	return nil
}

// ValidatePhoneNumber reports whether number is a plausible E.164 number.
func ValidatePhoneNumber(number string) error {
	if !e164.MatchString(strings.TrimSpace(number)) {
		return model.Permanent(fmt.Errorf("malformed phone number %q", number))
	}
	return nil
}
