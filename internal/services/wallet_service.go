package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"wallet/internal/cache"
	"wallet/internal/core"
	"wallet/internal/ledger"
	"wallet/internal/log"
	"wallet/internal/view"
)

// Input is a transaction as typed by a user. Date defaults to today when
// blank.
type Input struct {
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// WalletService is the presentation contract over the ledger: it validates
// input, holds the active filter and memoises projections per revision.
type WalletService struct {
	store  *ledger.Store
	rows   cache.Cache[[]view.Row]
	logger *log.Logger

	mu       sync.RWMutex
	criteria view.Criteria
}

func NewWalletService(store *ledger.Store, rows cache.Cache[[]view.Row], logger *log.Logger) *WalletService {
	if logger == nil {
		logger = log.Discard()
	}
	if rows == nil {
		rows = cache.NewLRUCache[[]view.Row](cache.DefaultMaxSize, 0)
	}
	s := &WalletService{
		store:    store,
		rows:     rows,
		logger:   logger.WithComponent(log.ComponentService),
		criteria: view.Criteria{Type: view.All},
	}
	// Older revisions can never be asked for again.
	store.OnChange(func(context.Context, ledger.Change) { rows.Purge() })
	return s
}

// Store exposes the ledger for wiring listeners.
func (s *WalletService) Store() *ledger.Store { return s.store }

// ParseInput turns raw input into a transaction ready for the ledger.
// Every problem is reported wrapped in core.ErrValidation.
func ParseInput(in Input) (core.Transaction, error) {
	typ, err := core.ParseTransactionType(in.Type)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: type %q: %w", core.ErrValidation, in.Type, err)
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: amount %q: %w", core.ErrValidation, in.Amount, err)
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = core.Today()
	}
	t := core.Transaction{
		Type:        typ,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Amount:      amount,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return t, nil
}

// AddTransaction validates in and appends it to the ledger.
func (s *WalletService) AddTransaction(ctx context.Context, in Input) (core.Transaction, error) {
	t, err := ParseInput(in)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejected transaction input",
			log.FieldOperation, log.OpValidate, log.FieldError, err)
		return core.Transaction{}, err
	}
	saved, err := s.store.Add(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	return saved, nil
}

// DeleteTransaction removes by synthetic ID.
func (s *WalletService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// DeleteAt removes by canonical index, never by filtered position.
func (s *WalletService) DeleteAt(ctx context.Context, index int) error {
	if err := s.store.RemoveAt(ctx, index); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// SetFilter replaces the active criteria.
func (s *WalletService) SetFilter(c view.Criteria) error {
	typ, err := view.ParseTypeFilter(string(c.Type))
	if err != nil {
		return err
	}
	c.Type = typ
	s.mu.Lock()
	s.criteria = c
	s.mu.Unlock()
	return nil
}

func (s *WalletService) Filter() view.Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria
}

// GetFilteredView projects the ledger through the active criteria.
func (s *WalletService) GetFilteredView(ctx context.Context) []view.Row {
	return s.Project(ctx, s.Filter())
}

// Project projects the ledger through c without touching the active criteria.
// The result is the caller's own copy; the memoised rows stay untouched.
func (s *WalletService) Project(ctx context.Context, c view.Criteria) []view.Row {
	if c.Type == "" {
		c.Type = view.All
	}
	list, rev := s.store.Snapshot()
	key := projectionKey(rev, c)
	if rows, ok := s.rows.Get(key); ok {
		return slices.Clone(rows)
	}
	rows := view.Project(list, c)
	s.rows.Set(key, rows)
	s.logger.DebugContext(ctx, "Projected view",
		log.FieldRevision, rev, log.FieldCount, len(rows))
	return slices.Clone(rows)
}

// GetTotals sums the whole ledger; the active filter has no influence.
func (s *WalletService) GetTotals(ctx context.Context) (view.Totals, error) {
	totals, err := view.Aggregate(s.store.List())
	if err != nil {
		s.logger.ErrorContext(ctx, "Cannot compute totals", log.FieldError, err)
		return view.Totals{}, err
	}
	return totals, nil
}

// Transactions returns the canonical list.
func (s *WalletService) Transactions() []core.Transaction {
	return s.store.List()
}

// IsValidation reports whether err came from rejected user input.
func IsValidation(err error) bool {
	return errors.Is(err, core.ErrValidation) || errors.Is(err, view.ErrInvalidFilter)
}

func projectionKey(rev uint64, c view.Criteria) string {
	return strconv.FormatUint(rev, 10) + "|" + string(c.Type) + "|" + strings.ToLower(c.Keyword)
}
