// Package pulse implements the wake pipeline: the per-entity chain lock,
// daily budget ledger, guard evaluation, wake prompt assembly, crash
// recovery, and the orchestrator state machine that ties them together.
package pulse

import "fmt"

// Key layout in the shared key-value store. Everything is entity-scoped.
func lockKey(entityID string) string {
	return fmt.Sprintf("pulse:lock:%s", entityID)
}

func budgetKey(entityID, day string) string {
	return fmt.Sprintf("pulse:budget:%s:%s", entityID, day)
}

func taskContextKey(entityID string) string {
	return fmt.Sprintf("pulse:task_context:%s", entityID)
}

func endSignalKey(entityID string) string {
	return fmt.Sprintf("pulse:end_signal:%s", entityID)
}

func interactionKey(entityID string) string {
	return fmt.Sprintf("pulse:last_interaction:%s", entityID)
}

func compassKey(entityID string) string {
	return fmt.Sprintf("pulse:compass:%s", entityID)
}
