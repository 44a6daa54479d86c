package models

import "time"

// EntryKind classifies a ledger entry. The ledger stores a positive
// magnitude per entry; the kind (plus direction, for adjustments) fixes the
// sign it contributes to the running balance.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryExpense    EntryKind = "expense"
	EntrySalary     EntryKind = "salary"
	EntryAdjustment EntryKind = "adjustment"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryWithdrawal, EntryExpense, EntrySalary, EntryAdjustment:
		return true
	}
	return false
}

type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// DirectionFor returns the direction implied by the kind. Adjustments carry
// no implied direction; it is chosen per entry from the sign of the delta.
func DirectionFor(kind EntryKind) (EntryDirection, bool) {
	switch kind {
	case EntryDeposit, EntrySalary:
		return DirectionCredit, true
	case EntryWithdrawal, EntryExpense:
		return DirectionDebit, true
	}
	return "", false
}

// ExpenseCategories is the single source for the category enum; the
// validator and the schema both derive from it.
var ExpenseCategories = []string{
	"alimentation",
	"transport",
	"logement",
	"loisirs",
	"santé",
	"éducation",
	"shopping",
	"autres",
}

func ValidCategory(category string) bool {
	for _, c := range ExpenseCategories {
		if c == category {
			return true
		}
	}
	return false
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// BalanceAccount is the per-user aggregate: one row, one running balance,
// never deleted. Created lazily on the first ledger operation.
type BalanceAccount struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is one immutable audit record of a balance change. Entries
// are append-only; corrections happen through new adjustment entries.
type LedgerEntry struct {
	ID           string         `db:"id" json:"id"`
	AccountID    string         `db:"account_id" json:"-"`
	Kind         EntryKind      `db:"kind" json:"kind"`
	Direction    EntryDirection `db:"direction" json:"direction"`
	Amount       int64          `db:"amount" json:"amount"`
	Description  string         `db:"description" json:"description"`
	Reference    *string        `db:"reference" json:"reference,omitempty"`
	BalanceAfter int64          `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// SignedAmount is the entry's contribution to the running balance.
func (e LedgerEntry) SignedAmount() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

type Expense struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Title       string    `db:"title" json:"title"`
	Amount      int64     `db:"amount" json:"amount"`
	Category    string    `db:"category" json:"category"`
	Date        time.Time `db:"date" json:"date"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
