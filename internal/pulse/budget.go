package pulse

import (
	"context"
	"time"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/models"
)

// Budget counter fields and retention. Counters are keyed by UTC day and kept
// roughly two days so yesterday's totals stay inspectable while today's are live.
const (
	budgetFieldWakes  = "wakes"
	budgetFieldTokens = "tokens"
	budgetTTL         = 48 * time.Hour
)

// BudgetStatus is the result of a daily budget check.
type BudgetStatus struct {
	Exhausted bool `json:"exhausted"`
	Wakes     int  `json:"wakes"`
	Tokens    int  `json:"tokens"`
}

// Ledger tracks per-entity, per-UTC-day wake and token counters.
type Ledger struct {
	kv *db.KVRepository

	// now is swappable for tests.
	now func() time.Time
}

// NewLedger creates a budget ledger.
func NewLedger(kv *db.KVRepository) *Ledger {
	return &Ledger{kv: kv, now: time.Now}
}

func (l *Ledger) dayKey(entityID string) string {
	return budgetKey(entityID, l.now().UTC().Format("2006-01-02"))
}

// Check reads today's counters and compares them against the entity's
// configured maxima. Missing counters count as zero. Pure read.
func (l *Ledger) Check(ctx context.Context, entityID string, cfg models.PulseConfig) (BudgetStatus, error) {
	fields, err := l.kv.GetFields(ctx, l.dayKey(entityID))
	if err != nil {
		return BudgetStatus{}, err
	}

	status := BudgetStatus{
		Wakes:  int(fields[budgetFieldWakes]),
		Tokens: int(fields[budgetFieldTokens]),
	}
	status.Exhausted = status.Wakes >= cfg.WakeBudget() || status.Tokens >= cfg.TokenBudget()
	return status, nil
}

// Increment records one wake and, if positive, its token usage against
// today's counters. Each field update is atomic; the key's expiry is extended
// on every write.
func (l *Ledger) Increment(ctx context.Context, entityID string, tokens int) error {
	key := l.dayKey(entityID)
	if _, err := l.kv.IncrField(ctx, key, budgetFieldWakes, 1, budgetTTL); err != nil {
		return err
	}
	if tokens > 0 {
		if _, err := l.kv.IncrField(ctx, key, budgetFieldTokens, int64(tokens), budgetTTL); err != nil {
			return err
		}
	}
	return nil
}
