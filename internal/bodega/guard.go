package bodega

import "fmt"

// Verdict is the guard's answer to a delete request.
type Verdict int

const (
	// VerdictBlocked refuses the request outright.
	VerdictBlocked Verdict = iota
	// VerdictSingleConfirm permits the request after one confirmation.
	VerdictSingleConfirm
	// VerdictDoubleConfirm permits the request after a scope specific
	// warning and a final confirmation, both accepted.
	VerdictDoubleConfirm
	// VerdictAllowed is reserved for deletes of a single record by id. They
	// are bounded by construction and skip scope classification, but still
	// carry one confirmation prompt.
	VerdictAllowed
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlocked:
		return "blocked"
	case VerdictSingleConfirm:
		return "single-confirm"
	case VerdictDoubleConfirm:
		return "double-confirm"
	case VerdictAllowed:
		return "allowed"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// DefaultModelConfirmThreshold is the model scope result count above which a
// second confirmation is required.
const DefaultModelConfirmThreshold = 5

// GuardPolicy configures the deletion guard.
type GuardPolicy struct {
	ModelConfirmThreshold int
}

// DefaultGuardPolicy returns the policy used when nothing is configured.
func DefaultGuardPolicy() GuardPolicy {
	return GuardPolicy{ModelConfirmThreshold: DefaultModelConfirmThreshold}
}

// Decision is the outcome of classifying one delete request.
type Decision struct {
	Scope    Scope
	RecordID int64 // set instead of Scope for single record deletes
	Term     string
	Count    int
	Verdict  Verdict
	Reason   string   // why the request was blocked; empty otherwise
	Prompts  []string // confirmations to obtain, in order
}

// Permitted reports whether the request may proceed once every prompt is accepted.
func (d Decision) Permitted() bool {
	return d.Verdict != VerdictBlocked
}

// Guard classifies bulk delete requests by the search scope that produced
// them. It holds no state besides its policy; every call is evaluated from
// its arguments alone.
type Guard struct {
	policy GuardPolicy
}

// NewGuard creates a Guard. A non-positive threshold falls back to the default.
func NewGuard(policy GuardPolicy) *Guard {
	if policy.ModelConfirmThreshold <= 0 {
		policy.ModelConfirmThreshold = DefaultModelConfirmThreshold
	}
	return &Guard{policy: policy}
}

// Classify decides how a bulk delete of count devices found with scope and
// term must be handled. Date terms coarser than a day are blocked.
func (g *Guard) Classify(scope Scope, term string, count int) Decision {
	d := Decision{Scope: scope, Term: term, Count: count}

	switch scope {
	case ScopeAll:
		d.Verdict = VerdictBlocked
		d.Reason = "deleting every device in the inventory is not allowed; narrow the search by serial, model or date"
	case ScopeByType:
		d.Verdict = VerdictBlocked
		d.Reason = fmt.Sprintf("deleting every device of type %q is not allowed; narrow the search by serial, model or date", term)
	case ScopeByPlant:
		d.Verdict = VerdictBlocked
		d.Reason = fmt.Sprintf("deleting every device of plant %q is not allowed; narrow the search by serial, model or date", term)
	case ScopeByModel:
		if count > g.policy.ModelConfirmThreshold {
			d.Verdict = VerdictDoubleConfirm
			d.Prompts = []string{
				fmt.Sprintf("You are about to delete %d devices of model %q. Continue?", count, term),
				finalPrompt(scope, term, count),
			}
		} else {
			d.Verdict = VerdictSingleConfirm
			d.Prompts = []string{finalPrompt(scope, term, count)}
		}
	case ScopeByDate:
		if !DayPrecision(term) {
			d.Verdict = VerdictBlocked
			d.Reason = fmt.Sprintf("deleting every device registered in %q is not allowed; narrow the date to a single day", term)
			break
		}
		d.Verdict = VerdictSingleConfirm
		d.Prompts = []string{finalPrompt(scope, term, count)}
	case ScopeBySerial:
		d.Verdict = VerdictSingleConfirm
		d.Prompts = []string{finalPrompt(scope, term, count)}
	default:
		d.Verdict = VerdictBlocked
		d.Reason = fmt.Sprintf("unrecognised search scope %s", scope)
	}

	return d
}

// ClassifyRecord returns the decision for deleting a single device by id.
func (g *Guard) ClassifyRecord(id int64) Decision {
	return Decision{
		RecordID: id,
		Term:     fmt.Sprintf("%d", id),
		Count:    1,
		Verdict:  VerdictAllowed,
		Prompts:  []string{fmt.Sprintf("Delete device record %d? This cannot be undone.", id)},
	}
}

func finalPrompt(scope Scope, term string, count int) string {
	return fmt.Sprintf("Delete all %d devices found by %s %q? This cannot be undone.", count, scope, term)
}
