package service_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/shopspring/decimal"
)

// --- Users ---

type memUserStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*domain.User
	refresh map[string]*domain.RefreshToken
	resets  map[string]*domain.PasswordResetToken
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:   map[string]*domain.User{},
		refresh: map[string]*domain.RefreshToken{},
		resets:  map[string]*domain.PasswordResetToken{},
	}
}

func (m *memUserStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memUserStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return &domain.ErrConflict{Message: "email already registered"}
		}
	}
	u.ID = m.nextID("user")
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUserStore) UpdateUser(ctx context.Context, id string, updates map[string]any) (*domain.User, error) {
	m.mu.Lock()
	u, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	for k, v := range updates {
		switch k {
		case "first_name":
			u.FirstName = v.(string)
		case "last_name":
			u.LastName = v.(string)
		case "email":
			u.Email = v.(string)
		case "preferences":
			u.Preferences = v.(map[string]any)
		}
	}
	m.mu.Unlock()
	return m.GetUserByID(ctx, id)
}

func (m *memUserStore) UpdateLoginState(_ context.Context, id string, failed int, lockedUntil, lastLoginAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.FailedAttempts = failed
	u.LockedUntil = lockedUntil
	if lastLoginAt != nil {
		u.LastLoginAt = lastLoginAt
	}
	return nil
}

func (m *memUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.PasswordHash = hash
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (m *memUserStore) SaveRefreshToken(_ context.Context, t *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("rt")
	cp := *t
	m.refresh[t.TokenHash] = &cp
	return nil
}

func (m *memUserStore) GetRefreshToken(_ context.Context, hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[hash]
	if !ok || t.RevokedAt != nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memUserStore) RevokeRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.refresh {
		if t.ID == id {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUserStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memUserStore) activeRefreshTokens(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (m *memUserStore) SavePasswordResetToken(_ context.Context, t *domain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("prt")
	cp := *t
	m.resets[t.TokenHash] = &cp
	return nil
}

func (m *memUserStore) ConsumePasswordResetToken(_ context.Context, hash string, now time.Time) (*domain.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[hash]
	if !ok || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return nil, &domain.ErrInvalidToken{}
	}
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}

// --- Notifier ---

type mockNotifier struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (n *mockNotifier) SendPasswordReset(_ context.Context, _ domain.User, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, link)
	return n.err
}

func (n *mockNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.links...)
}

// --- Events ---

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

// --- Ledger ---

// memLedger implements the transaction, budget, recurring and savings
// stores over maps.
type memLedger struct {
	mu        sync.Mutex
	seq       int
	txns      map[string]domain.Transaction
	budgets   map[string]domain.Budget
	alerts    []domain.BudgetAlert
	recurring map[string]domain.RecurringTransaction
	goals     map[string]domain.SavingsGoal

	// failFiring makes ApplyFiring fail for the listed template ids.
	failFiring map[string]error
}

func newMemLedger() *memLedger {
	return &memLedger{
		txns:       map[string]domain.Transaction{},
		budgets:    map[string]domain.Budget{},
		recurring:  map[string]domain.RecurringTransaction{},
		goals:      map[string]domain.SavingsGoal{},
		failFiring: map[string]error{},
	}
}

func (m *memLedger) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

var (
	_ port.TransactionStore = (*memLedger)(nil)
	_ port.BudgetStore      = (*memLedger)(nil)
	_ port.RecurringStore   = (*memLedger)(nil)
	_ port.SavingsGoalStore = (*memLedger)(nil)
	_ port.UserStore        = (*memUserStore)(nil)
)

func (m *memLedger) CreateTransaction(_ context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("txn")
	m.txns[t.ID] = *t
	return nil
}

func (m *memLedger) GetTransaction(_ context.Context, ownerID, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok || t.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return &t, nil
}

func (m *memLedger) ListTransactions(_ context.Context, ownerID string, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.OwnerID != ownerID {
			continue
		}
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(t.Description+" "+t.Category), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredOn.After(out[j].OccurredOn) })
	total := len(out)
	if f.PageSize > 0 {
		start := (f.Page - 1) * f.PageSize
		if start > len(out) {
			start = len(out)
		}
		end := start + f.PageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (m *memLedger) UpdateTransaction(_ context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = *t
	return nil
}

func (m *memLedger) DeleteTransaction(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txns[id]; !ok || t.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	delete(m.txns, id)
	return nil
}

func inRange(d, from, to domain.Date) bool {
	return !d.Before(from) && !d.After(to)
}

func (m *memLedger) SumByCategory(_ context.Context, ownerID string, kind domain.TransactionKind, from, to domain.Date) ([]domain.CategoryTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCat := map[string]*domain.CategoryTotal{}
	for _, t := range m.txns {
		if t.OwnerID != ownerID || t.Kind != kind || !inRange(t.OccurredOn, from, to) {
			continue
		}
		c, ok := byCat[t.Category]
		if !ok {
			c = &domain.CategoryTotal{Category: t.Category, Total: decimal.Zero}
			byCat[t.Category] = c
		}
		c.Total = c.Total.Add(t.Amount)
		c.TransactionCount++
	}
	var out []domain.CategoryTotal
	for _, c := range byCat {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *memLedger) SumExpenses(_ context.Context, ownerID, category string, from, to domain.Date) (decimal.Decimal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, n := decimal.Zero, 0
	for _, t := range m.txns {
		if t.OwnerID == ownerID && t.Kind == domain.KindExpense && t.Category == category && inRange(t.OccurredOn, from, to) {
			total = total.Add(t.Amount)
			n++
		}
	}
	return total, n, nil
}

func (m *memLedger) CreateBudget(_ context.Context, b *domain.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextID("budget")
	m.budgets[b.ID] = *b
	return nil
}

func (m *memLedger) GetBudget(_ context.Context, ownerID, id string) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "budget", ID: id}
	}
	return &b, nil
}

func (m *memLedger) ListBudgets(_ context.Context, ownerID string, f domain.BudgetFilter) ([]domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Budget
	for _, b := range m.budgets {
		if b.OwnerID != ownerID {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if f.Period != "" && b.Period != f.Period {
			continue
		}
		if f.IsActive != nil && b.IsActive != *f.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memLedger) UpdateBudget(_ context.Context, b *domain.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[b.ID] = *b
	return nil
}

func (m *memLedger) DeleteBudget(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.budgets[id]; !ok || b.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "budget", ID: id}
	}
	delete(m.budgets, id)
	return nil
}

func (m *memLedger) RecentAlertTypes(_ context.Context, budgetID string, since time.Time) (map[domain.AlertType]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.AlertType]bool{}
	for _, a := range m.alerts {
		if a.BudgetID == budgetID && a.CreatedAt.After(since) {
			out[a.AlertType] = true
		}
	}
	return out, nil
}

func (m *memLedger) CreateAlert(_ context.Context, a *domain.BudgetAlert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.BudgetID == a.BudgetID && existing.AlertType == a.AlertType && existing.DayBucket == a.DayBucket {
			return false, nil
		}
	}
	a.ID = m.nextID("alert")
	m.alerts = append(m.alerts, *a)
	return true, nil
}

func (m *memLedger) ListAlerts(_ context.Context, ownerID string, f domain.AlertFilter) ([]domain.BudgetAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BudgetAlert
	for _, a := range m.alerts {
		if a.OwnerID != ownerID || (f.UnreadOnly && a.IsRead) || (f.Severity != "" && a.Severity != f.Severity) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memLedger) MarkAlert(_ context.Context, ownerID, budgetID, alertID string, acknowledge bool) (*domain.BudgetAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts {
		if a.ID == alertID && a.BudgetID == budgetID && a.OwnerID == ownerID {
			m.alerts[i].IsRead = true
			if acknowledge {
				m.alerts[i].IsAcknowledged = true
			}
			cp := m.alerts[i]
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "budget_alert", ID: alertID}
}

func (m *memLedger) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// alertsByType counts stored alerts per type and remembers the last severity seen.
func (m *memLedger) alertsByType() (map[domain.AlertType]int, map[domain.AlertType]domain.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.AlertType]int{}
	severities := map[domain.AlertType]domain.Severity{}
	for _, a := range m.alerts {
		counts[a.AlertType]++
		severities[a.AlertType] = a.Severity
	}
	return counts, severities
}

func (m *memLedger) CreateRecurring(_ context.Context, tpl *domain.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl.ID = m.nextID("rec")
	m.recurring[tpl.ID] = *tpl
	return nil
}

func (m *memLedger) GetRecurring(_ context.Context, ownerID, id string) (*domain.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.recurring[id]
	if !ok || tpl.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "recurring_transaction", ID: id}
	}
	return &tpl, nil
}

func (m *memLedger) ListRecurring(_ context.Context, ownerID string, f domain.RecurringFilter) ([]domain.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RecurringTransaction
	for _, tpl := range m.recurring {
		if tpl.OwnerID != ownerID {
			continue
		}
		if f.IsActive != nil && tpl.IsActive != *f.IsActive {
			continue
		}
		if f.Kind != "" && tpl.Kind != f.Kind {
			continue
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memLedger) UpdateRecurring(_ context.Context, tpl *domain.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurring[tpl.ID] = *tpl
	return nil
}

func (m *memLedger) DeleteRecurring(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl, ok := m.recurring[id]; !ok || tpl.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "recurring_transaction", ID: id}
	}
	delete(m.recurring, id)
	return nil
}

func (m *memLedger) ListDueRecurring(_ context.Context, ownerID string, today domain.Date) ([]domain.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RecurringTransaction
	for _, tpl := range m.recurring {
		if ownerID != "" && tpl.OwnerID != ownerID {
			continue
		}
		if tpl.IsActive && !tpl.NextOccurrence.After(today) {
			out = append(out, tpl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memLedger) ApplyFiring(_ context.Context, tpl *domain.RecurringTransaction, expectedNext domain.Date, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFiring[tpl.ID]; err != nil {
		return err
	}
	stored, ok := m.recurring[tpl.ID]
	if !ok || !stored.IsActive || !stored.NextOccurrence.Equal(expectedNext) {
		return &domain.ErrConflict{Message: "already fired"}
	}
	stored.NextOccurrence = tpl.NextOccurrence
	stored.IsActive = tpl.IsActive
	m.recurring[tpl.ID] = stored
	txn.ID = m.nextID("txn")
	m.txns[txn.ID] = *txn
	return nil
}

func (m *memLedger) CreateGoal(_ context.Context, g *domain.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.nextID("goal")
	m.goals[g.ID] = *g
	return nil
}

func (m *memLedger) GetGoal(_ context.Context, ownerID, id string) (*domain.SavingsGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok || g.OwnerID != ownerID {
		return nil, &domain.ErrNotFound{Resource: "savings_goal", ID: id}
	}
	return &g, nil
}

func (m *memLedger) ListGoals(_ context.Context, ownerID string, status domain.GoalStatus) ([]domain.SavingsGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SavingsGoal
	for _, g := range m.goals {
		if g.OwnerID == ownerID && (status == "" || g.Status == status) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memLedger) UpdateGoal(_ context.Context, g *domain.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[g.ID] = *g
	return nil
}

func (m *memLedger) DeleteGoal(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.goals[id]; !ok || g.OwnerID != ownerID {
		return &domain.ErrNotFound{Resource: "savings_goal", ID: id}
	}
	delete(m.goals, id)
	return nil
}

// --- Helpers ---

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func datePtr(d domain.Date) *domain.Date {
	return &d
}
