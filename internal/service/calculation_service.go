package service

import (
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/util"
	"github.com/shopspring/decimal"
)

// MonthInput is everything the month balance calculation depends on
type MonthInput struct {
	Month        domain.YearMonth
	Transactions domain.MonthTransactions
	// Previous is the snapshot of the previous existing month; nil means the zero baseline
	Previous *domain.Snapshot
	// Categories and Accounts are the definitions in display order
	Categories          []*domain.Category
	Accounts            []*domain.Account
	AccountGroups       map[string]*domain.AccountGroup
	Allocations         domain.MonthAllocations
	PreviousMonthIncome decimal.Decimal
}

// CalculationService derives month balances. It holds no state and does no I/O.
type CalculationService struct {
	resolver *AllocationResolver
}

// NewCalculationService creates a new CalculationService
func NewCalculationService() *CalculationService {
	return &CalculationService{resolver: NewAllocationResolver()}
}

// InputFromBudget fills the definition fields of a MonthInput from a budget
func InputFromBudget(budget *domain.Budget, month *domain.MonthRecord) MonthInput {
	return MonthInput{
		Month:         month.YearMonth(),
		Transactions:  month.Transactions(),
		Categories:    budget.SortedCategories(),
		Accounts:      budget.SortedAccounts(),
		AccountGroups: budget.AccountGroups,
		Allocations:   month.Allocations(),
	}
}

type categoryTotals struct {
	start, allocated, spent, transfers, adjustments decimal.Decimal
}

type accountTotals struct {
	start, clearedStart decimal.Decimal
	cleared, uncleared  domain.AccountActivity
}

// ledger accumulates legs of one month's transactions
type ledger struct {
	categories map[string]*categoryTotals
	accounts   map[string]*accountTotals
	onBudget   map[string]bool

	unassignedDelta decimal.Decimal
	offBudgetDelta  decimal.Decimal
}

type accountColumn int

const (
	columnIncome accountColumn = iota
	columnExpenses
	columnTransfers
	columnAdjustments
)

type accountLeg struct {
	accountID string
	column    accountColumn
	amount    decimal.Decimal
}

type categoryLeg struct {
	categoryID string
	column     accountColumn
	amount     decimal.Decimal
}

func (l *ledger) categoryKey(id string) string {
	if _, ok := l.categories[id]; ok && id != "" {
		return id
	}
	return domain.UnknownCategoryID
}

func (l *ledger) accountKey(id string) string {
	if _, ok := l.accounts[id]; ok {
		return id
	}
	return domain.UnknownAccountID
}

// post applies one transaction's legs. Money flowing through an on-budget account
// and not into a category lands in ready-to-assign; category activity with no
// on-budget account behind it is tracked as off-budget carry.
func (l *ledger) post(cleared bool, accounts []accountLeg, categories []categoryLeg) {
	touchesOnBudget := false
	onBudgetSum := decimal.Zero
	for _, leg := range accounts {
		key := l.accountKey(leg.accountID)
		t := l.accounts[key]
		activity := &t.uncleared
		if cleared {
			activity = &t.cleared
		}
		switch leg.column {
		case columnIncome:
			activity.Income = util.AddCents(activity.Income, leg.amount)
		case columnExpenses:
			activity.Expenses = util.AddCents(activity.Expenses, leg.amount)
		case columnTransfers:
			activity.Transfers = util.AddCents(activity.Transfers, leg.amount)
		case columnAdjustments:
			activity.Adjustments = util.AddCents(activity.Adjustments, leg.amount)
		}
		if l.onBudget[key] {
			touchesOnBudget = true
			onBudgetSum = util.AddCents(onBudgetSum, leg.amount)
		}
	}

	categorySum := decimal.Zero
	for _, leg := range categories {
		t := l.categories[l.categoryKey(leg.categoryID)]
		switch leg.column {
		case columnExpenses:
			t.spent = util.AddCents(t.spent, leg.amount)
		case columnTransfers:
			t.transfers = util.AddCents(t.transfers, leg.amount)
		case columnAdjustments:
			t.adjustments = util.AddCents(t.adjustments, leg.amount)
		}
		categorySum = util.AddCents(categorySum, leg.amount)
	}

	if touchesOnBudget {
		l.unassignedDelta = util.AddCents(l.unassignedDelta, onBudgetSum.Sub(categorySum))
	} else {
		l.offBudgetDelta = util.AddCents(l.offBudgetDelta, categorySum.Neg())
	}
}

// Compute derives the balances of one month. Running it twice on the same
// input yields identical output.
func (s *CalculationService) Compute(in MonthInput) *domain.MonthBalances {
	prev := in.Previous
	if prev == nil {
		prev = domain.ZeroSnapshot()
	}
	prevIncome := util.RoundCents(in.PreviousMonthIncome)

	l := &ledger{
		categories: make(map[string]*categoryTotals, len(in.Categories)+1),
		accounts:   make(map[string]*accountTotals, len(in.Accounts)+1),
		onBudget:   make(map[string]bool, len(in.Accounts)+1),
	}
	for _, c := range in.Categories {
		l.categories[c.ID] = &categoryTotals{}
	}
	l.categories[domain.UnknownCategoryID] = &categoryTotals{}
	for _, a := range in.Accounts {
		l.accounts[a.ID] = &accountTotals{}
		l.onBudget[a.ID] = a.EffectiveOnBudget(in.AccountGroups)
	}
	l.accounts[domain.UnknownAccountID] = &accountTotals{}
	l.onBudget[domain.UnknownAccountID] = true

	// Start balances. Snapshot entries for ids no longer defined fold into the unknown buckets.
	for id, end := range prev.CategoryEndBalances {
		t := l.categories[l.categoryKey(id)]
		t.start = util.AddCents(t.start, end)
	}
	for id, end := range prev.AccountEndBalances {
		t := l.accounts[l.accountKey(id)]
		t.start = util.AddCents(t.start, end)
		clearedEnd, ok := prev.AccountClearedEndBalances[id]
		if !ok {
			clearedEnd = end
		}
		t.clearedStart = util.AddCents(t.clearedStart, clearedEnd)
	}

	totalIncome := decimal.Zero
	totalExpenses := decimal.Zero

	for _, tx := range in.Transactions.Income {
		amt := util.RoundCents(tx.Amount)
		totalIncome = util.AddCents(totalIncome, amt)
		l.post(tx.Cleared, []accountLeg{{tx.AccountID, columnIncome, amt}}, nil)
	}
	for _, tx := range in.Transactions.Expenses {
		amt := util.RoundCents(tx.Amount)
		totalExpenses = util.AddCents(totalExpenses, amt)
		l.post(tx.Cleared,
			[]accountLeg{{tx.AccountID, columnExpenses, amt.Neg()}},
			[]categoryLeg{{tx.CategoryID, columnExpenses, amt.Neg()}})
	}
	for _, tx := range in.Transactions.Transfers {
		amt := util.RoundCents(tx.Amount)
		var accounts []accountLeg
		var categories []categoryLeg
		if tx.FromAccountID != "" {
			accounts = append(accounts, accountLeg{tx.FromAccountID, columnTransfers, amt.Neg()})
		}
		if tx.ToAccountID != "" {
			accounts = append(accounts, accountLeg{tx.ToAccountID, columnTransfers, amt})
		}
		if tx.FromCategoryID != "" {
			categories = append(categories, categoryLeg{tx.FromCategoryID, columnTransfers, amt.Neg()})
		}
		if tx.ToCategoryID != "" {
			categories = append(categories, categoryLeg{tx.ToCategoryID, columnTransfers, amt})
		}
		l.post(tx.Cleared, accounts, categories)
	}
	for _, tx := range in.Transactions.Adjustments {
		amt := util.RoundCents(tx.Amount)
		var accounts []accountLeg
		var categories []categoryLeg
		if tx.AccountID != "" {
			accounts = append(accounts, accountLeg{tx.AccountID, columnAdjustments, amt})
		}
		if tx.CategoryID != "" {
			categories = append(categories, categoryLeg{tx.CategoryID, columnAdjustments, amt})
		}
		l.post(tx.Cleared, accounts, categories)
	}

	result := &domain.MonthBalances{
		CategoryBalances:    make([]domain.CategoryMonthBalance, 0, len(in.Categories)+1),
		AccountBalances:     make([]domain.AccountMonthBalance, 0, len(in.Accounts)+1),
		TotalIncome:         totalIncome,
		TotalExpenses:       totalExpenses,
		PreviousMonthIncome: prevIncome,
		TotalAllocated:      decimal.Zero,
		TotalNewlyAvailable: decimal.Zero,
		OffBudgetStart:      util.RoundCents(prev.OffBudgetEnd),
	}

	categoryStartSum := decimal.Zero
	categoryEndSum := decimal.Zero
	appendCategory := func(id string, allocated decimal.Decimal) {
		t := l.categories[id]
		t.allocated = allocated
		row := domain.CategoryMonthBalance{
			CategoryID:   id,
			StartBalance: t.start,
			Allocated:    t.allocated,
			Spent:        t.spent,
			Transfers:    t.transfers,
			Adjustments:  t.adjustments,
			EndBalance:   util.SumCents(t.start, t.allocated, t.spent, t.transfers, t.adjustments),
		}
		result.CategoryBalances = append(result.CategoryBalances, row)
		result.TotalAllocated = util.AddCents(result.TotalAllocated, allocated)
		result.TotalNewlyAvailable = util.AddCents(result.TotalNewlyAvailable, NewlyAvailable(t.start, allocated))
		categoryStartSum = util.AddCents(categoryStartSum, row.StartBalance)
		categoryEndSum = util.AddCents(categoryEndSum, row.EndBalance)
	}
	for _, c := range in.Categories {
		appendCategory(c.ID, s.resolver.Resolve(c, in.Allocations, prevIncome))
	}
	if unknown := l.categories[domain.UnknownCategoryID]; !unknown.isZero() {
		appendCategory(domain.UnknownCategoryID, decimal.Zero)
	}

	onBudgetStartSum := decimal.Zero
	onBudgetEndSum := decimal.Zero
	appendAccount := func(id string) {
		t := l.accounts[id]
		cleared := finishActivity(t.cleared)
		uncleared := finishActivity(t.uncleared)
		row := domain.AccountMonthBalance{
			AccountID:             id,
			StartBalance:          t.start,
			Income:                util.AddCents(cleared.Income, uncleared.Income),
			Expenses:              util.AddCents(cleared.Expenses, uncleared.Expenses),
			Transfers:             util.AddCents(cleared.Transfers, uncleared.Transfers),
			Adjustments:           util.AddCents(cleared.Adjustments, uncleared.Adjustments),
			ClearedStartBalance:   t.clearedStart,
			UnclearedStartBalance: util.AddCents(t.start, t.clearedStart.Neg()),
			ClearedActivity:       cleared,
			UnclearedActivity:     uncleared,
		}
		row.NetChange = util.SumCents(row.Income, row.Expenses, row.Transfers, row.Adjustments)
		row.EndBalance = util.AddCents(row.StartBalance, row.NetChange)
		row.ClearedEndBalance = util.AddCents(row.ClearedStartBalance, cleared.NetChange)
		row.UnclearedEndBalance = util.AddCents(row.UnclearedStartBalance, uncleared.NetChange)
		result.AccountBalances = append(result.AccountBalances, row)
		if l.onBudget[id] {
			onBudgetStartSum = util.AddCents(onBudgetStartSum, row.StartBalance)
			onBudgetEndSum = util.AddCents(onBudgetEndSum, row.EndBalance)
		}
	}
	for _, a := range in.Accounts {
		appendAccount(a.ID)
	}
	if unknown := l.accounts[domain.UnknownAccountID]; !unknown.isZero() {
		appendAccount(domain.UnknownAccountID)
	}

	// Ready-to-assign is derived from the balance identity rather than carried,
	// so accounts moving on or off budget between months cannot skew it.
	result.OffBudgetEnd = util.AddCents(result.OffBudgetStart, l.offBudgetDelta)
	result.UnassignedStart = util.SumCents(onBudgetStartSum, categoryStartSum.Neg(), result.OffBudgetStart.Neg())
	result.UnassignedEnd = util.SumCents(onBudgetEndSum, categoryEndSum.Neg(), result.OffBudgetEnd.Neg())

	return result
}

// NewlyAvailable is the part of an allocation that exceeds the category's
// outstanding debt at the start of the month
func NewlyAvailable(start, allocated decimal.Decimal) decimal.Decimal {
	debt := decimal.Max(decimal.Zero, start.Neg())
	return decimal.Max(decimal.Zero, util.AddCents(allocated, debt.Neg()))
}

func finishActivity(a domain.AccountActivity) domain.AccountActivity {
	a.NetChange = util.SumCents(a.Income, a.Expenses, a.Transfers, a.Adjustments)
	return a
}

func (t *categoryTotals) isZero() bool {
	return t.start.IsZero() && t.allocated.IsZero() && t.spent.IsZero() && t.transfers.IsZero() && t.adjustments.IsZero()
}

func (t *accountTotals) isZero() bool {
	c, u := t.cleared, t.uncleared
	return t.start.IsZero() && t.clearedStart.IsZero() &&
		c.Income.IsZero() && c.Expenses.IsZero() && c.Transfers.IsZero() && c.Adjustments.IsZero() &&
		u.Income.IsZero() && u.Expenses.IsZero() && u.Transfers.IsZero() && u.Adjustments.IsZero()
}
