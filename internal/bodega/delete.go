package bodega

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeBlocked is returned when the guard refuses a bulk delete.
	ErrScopeBlocked = errors.New("delete blocked for this search scope")

	// ErrNoResults is returned when a bulk delete is requested for an empty search.
	ErrNoResults = errors.New("search returned no devices")
)

// Confirmer obtains a yes/no answer to a prompt from whoever requested the delete.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// DeleteOutcome reports what happened to a delete request.
type DeleteOutcome struct {
	Decision  Decision
	Confirmed bool  // every prompt was accepted
	Expected  int   // devices in the search result
	Deleted   int64 // rows the store actually removed
}

// Mismatch reports whether the store removed a different number of rows than
// the search showed.
func (o *DeleteOutcome) Mismatch() bool {
	return o.Confirmed && o.Deleted != int64(o.Expected)
}

// DeleteScoped deletes every device matched by a search, subject to the
// guard. The decision is computed from the result passed in on every call.
// A declined prompt returns an outcome with Confirmed false and no error.
func (s *InventoryService) DeleteScoped(result *SearchResult, confirmer Confirmer) (*DeleteOutcome, error) {
	if result == nil {
		return nil, fmt.Errorf("no search result to delete from")
	}
	if result.Count() == 0 {
		return nil, ErrNoResults
	}

	decision := s.guard.Classify(result.Scope, result.Term, result.Count())
	outcome := &DeleteOutcome{Decision: decision, Expected: result.Count()}

	if !decision.Permitted() {
		s.logger.Warn("bulk delete blocked", "scope", result.Scope.String(), "term", result.Term, "count", result.Count())
		return outcome, fmt.Errorf("%w: %s", ErrScopeBlocked, decision.Reason)
	}

	ok, err := askAll(confirmer, decision.Prompts)
	if err != nil {
		return outcome, fmt.Errorf("confirming delete: %w", err)
	}
	if !ok {
		s.logger.Info("bulk delete cancelled", "scope", result.Scope.String(), "term", result.Term)
		return outcome, nil
	}
	outcome.Confirmed = true

	field, ok := result.Scope.Field()
	if !ok {
		return outcome, fmt.Errorf("scope %s has no storage field", result.Scope)
	}

	deleted, err := s.store.DeleteWhere(field, result.Term, true)
	if err != nil {
		return outcome, fmt.Errorf("deleting by %s: %w", result.Scope, err)
	}
	outcome.Deleted = deleted

	if outcome.Mismatch() {
		s.logger.Warn("deleted count differs from search result",
			"scope", result.Scope.String(), "term", result.Term,
			"expected", outcome.Expected, "deleted", deleted)
	} else {
		s.logger.Info("bulk delete complete", "scope", result.Scope.String(), "term", result.Term, "deleted", deleted)
	}
	return outcome, nil
}

// DeleteRecord deletes a single device by id after one confirmation.
func (s *InventoryService) DeleteRecord(id int64, confirmer Confirmer) (*DeleteOutcome, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	decision := s.guard.ClassifyRecord(id)
	outcome := &DeleteOutcome{Decision: decision, Expected: 1}

	ok, err := askAll(confirmer, decision.Prompts)
	if err != nil {
		return outcome, fmt.Errorf("confirming delete: %w", err)
	}
	if !ok {
		return outcome, nil
	}
	outcome.Confirmed = true

	if err := s.store.DeleteByID(id); err != nil {
		return outcome, fmt.Errorf("deleting device %d: %w", id, err)
	}
	outcome.Deleted = 1

	s.logger.Info("device deleted", "id", id)
	return outcome, nil
}

// askAll stops at the first declined prompt.
func askAll(confirmer Confirmer, prompts []string) (bool, error) {
	for _, p := range prompts {
		ok, err := confirmer.Confirm(p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
