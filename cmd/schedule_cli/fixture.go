package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// Fixture is an offline snapshot of one account: its plan history and transaction log
type Fixture struct {
	AccountRef string         `yaml:"account_ref"`
	Currency   string         `yaml:"currency"`
	Plans      []*plan.Plan   `yaml:"plans"`
	Events     []FixtureEvent `yaml:"events"`
}

// FixtureEvent is a transaction log entry. Amount is a decimal string in major units,
// AmountMinor wins when both are set.
type FixtureEvent struct {
	ID          uuid.UUID          `yaml:"id"`
	Amount      string             `yaml:"amount"`
	AmountMinor int64              `yaml:"amount_minor"`
	Direction   shared.Direction   `yaml:"direction"`
	Source      shared.EventSource `yaml:"source"`
	Status      shared.EventStatus `yaml:"status"`
	SlotIndex   *int               `yaml:"slot_index"`
	OccurredAt  time.Time          `yaml:"occurred_at"`
	Description string             `yaml:"description"`
}

// LoadFixture reads and parses a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture YAML and fills defaults
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if f.AccountRef == "" {
		return nil, errors.New("fixture has no account_ref")
	}
	if len(f.Plans) == 0 {
		return nil, errors.New("fixture has no plans")
	}
	if f.Currency == "" {
		f.Currency = shared.DefaultCurrency
	}
	return &f, nil
}

// History returns the fixture's plans as a validated history
func (f *Fixture) History() (plan.History, error) {
	for _, p := range f.Plans {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.AccountRef = f.AccountRef
	}
	return plan.NewHistory(f.Plans)
}

// TransactionLog converts fixture events into log events of the fixture's account
func (f *Fixture) TransactionLog() ([]*txlog.Event, error) {
	events := make([]*txlog.Event, 0, len(f.Events))
	for i, fe := range f.Events {
		amount := fe.AmountMinor
		if amount == 0 {
			parsed, err := shared.ParseMinor(fe.Amount, f.Currency)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i+1, err)
			}
			amount = parsed
		}

		id := fe.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		direction := fe.Direction
		if direction == "" {
			direction = shared.DirectionCredit
		}
		source := fe.Source
		if source == "" {
			source = shared.EventSourceMemberPayment
		}
		status := fe.Status
		if status == "" {
			status = shared.EventStatusApproved
		}

		event, err := txlog.NewEvent(&shared.TransactionCommand{
			EventID:     id,
			AccountRef:  f.AccountRef,
			Amount:      amount,
			Direction:   direction,
			Source:      source,
			SlotIndex:   fe.SlotIndex,
			OccurredAt:  fe.OccurredAt,
			Description: fe.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		event.Status = status
		events = append(events, event)
	}
	return events, nil
}
