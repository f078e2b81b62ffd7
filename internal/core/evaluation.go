package core

// BudgetStatus classifies spending against a budget ceiling.
type BudgetStatus string

const (
	StatusOverBudget  BudgetStatus = "over_budget"
	StatusOnBudget    BudgetStatus = "on_budget"
	StatusUnderBudget BudgetStatus = "under_budget"
)

// Evaluation is the outcome of comparing a month's spending in one
// category against the configured budget. When HasBudget is false only
// TotalSpent is meaningful and Status stays empty.
type Evaluation struct {
	CategoryID   int64
	CategoryName string
	Month        Month
	TotalSpent   Money
	HasBudget    bool
	Budget       Money
	Status       BudgetStatus
	// OverAmount is set only for StatusOverBudget, SavedAmount only for
	// StatusUnderBudget.
	OverAmount  Money
	SavedAmount Money
}

// Classify fills in Status, OverAmount and SavedAmount from TotalSpent and
// Budget. Exact equality is its own state and must never collapse into
// over or under.
func (e *Evaluation) Classify() {
	if !e.HasBudget {
		e.Status = ""
		e.OverAmount = Money{}
		e.SavedAmount = Money{}
		return
	}
	diff := e.TotalSpent.Sub(e.Budget)
	switch {
	case diff.Paise > 0:
		e.Status = StatusOverBudget
		e.OverAmount = diff
		e.SavedAmount = Money{}
	case diff.Paise == 0:
		e.Status = StatusOnBudget
		e.OverAmount = Money{}
		e.SavedAmount = Money{}
	default:
		e.Status = StatusUnderBudget
		e.OverAmount = Money{}
		e.SavedAmount = diff.Neg()
	}
}

// Evaluate builds a classified Evaluation from raw figures. A nil budget
// means no ceiling is configured for the triple.
func Evaluate(categoryID int64, month Month, totalSpent Money, budget *Money) Evaluation {
	ev := Evaluation{
		CategoryID: categoryID,
		Month:      month,
		TotalSpent: totalSpent,
	}
	if budget != nil {
		ev.HasBudget = true
		ev.Budget = *budget
	}
	ev.Classify()
	return ev
}
