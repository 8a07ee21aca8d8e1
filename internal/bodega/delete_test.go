package bodega_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodega-go/internal/bodega"
)

// scriptedConfirmer answers prompts from a fixed list and records what it was asked.
type scriptedConfirmer struct {
	answers []bool
	asked   []string
}

func (c *scriptedConfirmer) Confirm(prompt string) (bool, error) {
	c.asked = append(c.asked, prompt)
	if len(c.asked) > len(c.answers) {
		return false, fmt.Errorf("unexpected prompt %q", prompt)
	}
	return c.answers[len(c.asked)-1], nil
}

func yes(n int) *scriptedConfirmer {
	answers := make([]bool, n)
	for i := range answers {
		answers[i] = true
	}
	return &scriptedConfirmer{answers: answers}
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	res, err := h.svc.Search(bodega.ScopeAll, "")
	require.NoError(t, err)
	return res.Count()
}

func TestDeleteScoped_Blocked(t *testing.T) {
	tests := []struct {
		name  string
		scope bodega.Scope
		term  string
	}{
		{"all", bodega.ScopeAll, ""},
		{"type", bodega.ScopeByType, "Laptop"},
		{"plant", bodega.ScopeByPlant, "UP01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.register(t, "SN-001", "Laptop", "X1", "UP01")

			res, err := h.svc.Search(tt.scope, tt.term)
			require.NoError(t, err)
			require.Equal(t, 1, res.Count())

			confirmer := yes(2)
			outcome, err := h.svc.DeleteScoped(res, confirmer)
			require.Error(t, err)
			assert.True(t, errors.Is(err, bodega.ErrScopeBlocked))
			require.NotNil(t, outcome)
			assert.Equal(t, bodega.VerdictBlocked, outcome.Decision.Verdict)
			assert.False(t, outcome.Confirmed)
			assert.Empty(t, confirmer.asked, "a blocked delete never prompts")
			assert.Equal(t, 1, h.count(t))
		})
	}
}

func TestDeleteScoped_SerialSingleConfirm(t *testing.T) {
	h := newHarness(t)
	h.register(t, "SN-001", "Laptop", "X1", "UP01")
	h.register(t, "SN-002", "Laptop", "X1", "UP01")

	res, err := h.svc.Search(bodega.ScopeBySerial, "SN-001")
	require.NoError(t, err)

	confirmer := yes(1)
	outcome, err := h.svc.DeleteScoped(res, confirmer)
	require.NoError(t, err)
	assert.Len(t, confirmer.asked, 1)
	assert.True(t, outcome.Confirmed)
	assert.Equal(t, int64(1), outcome.Deleted)
	assert.False(t, outcome.Mismatch())
	assert.Equal(t, 1, h.count(t))

	logs, err := h.svc.History(1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "DELETE", logs[0].Action)
}

func TestDeleteScoped_ModelDoubleConfirm(t *testing.T) {
	setup := func(t *testing.T) (*harness, *bodega.SearchResult) {
		h := newHarness(t)
		for i := 0; i < 6; i++ {
			h.register(t, fmt.Sprintf("SN-%03d", i), "Laptop", "X1", "UP01")
		}
		res, err := h.svc.Search(bodega.ScopeByModel, "X1")
		require.NoError(t, err)
		require.Equal(t, 6, res.Count())
		return h, res
	}

	t.Run("both accepted", func(t *testing.T) {
		h, res := setup(t)
		confirmer := yes(2)

		outcome, err := h.svc.DeleteScoped(res, confirmer)
		require.NoError(t, err)
		require.Len(t, confirmer.asked, 2)
		assert.Contains(t, confirmer.asked[0], "6 devices of model \"X1\"")
		assert.Contains(t, confirmer.asked[1], "cannot be undone")
		assert.Equal(t, int64(6), outcome.Deleted)
		assert.Zero(t, h.count(t))
	})

	t.Run("warning declined", func(t *testing.T) {
		h, res := setup(t)
		confirmer := &scriptedConfirmer{answers: []bool{false}}

		outcome, err := h.svc.DeleteScoped(res, confirmer)
		require.NoError(t, err)
		assert.Len(t, confirmer.asked, 1, "the final prompt is never shown")
		assert.False(t, outcome.Confirmed)
		assert.Zero(t, outcome.Deleted)
		assert.Equal(t, 6, h.count(t))
	})

	t.Run("final prompt declined", func(t *testing.T) {
		h, res := setup(t)
		confirmer := &scriptedConfirmer{answers: []bool{true, false}}

		outcome, err := h.svc.DeleteScoped(res, confirmer)
		require.NoError(t, err)
		assert.Len(t, confirmer.asked, 2)
		assert.False(t, outcome.Confirmed)
		assert.Equal(t, 6, h.count(t))
	})
}

func TestDeleteScoped_ModelAtThreshold(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.register(t, fmt.Sprintf("SN-%03d", i), "Laptop", "X1", "UP01")
	}
	res, err := h.svc.Search(bodega.ScopeByModel, "X1")
	require.NoError(t, err)

	confirmer := yes(1)
	outcome, err := h.svc.DeleteScoped(res, confirmer)
	require.NoError(t, err)
	assert.Equal(t, bodega.VerdictSingleConfirm, outcome.Decision.Verdict)
	assert.Equal(t, int64(5), outcome.Deleted)
}

func TestDeleteScoped_CountMismatch(t *testing.T) {
	h := newHarness(t)
	h.register(t, "SN-001", "Laptop", "X1", "UP01")
	h.register(t, "SN-002", "Laptop", "X1", "UP01")
	h.register(t, "SN-003", "Laptop", "X1 Carbon", "UP01")

	// The search matches model substrings; the delete matches the model exactly.
	res, err := h.svc.Search(bodega.ScopeByModel, "X1")
	require.NoError(t, err)
	require.Equal(t, 3, res.Count())

	outcome, err := h.svc.DeleteScoped(res, yes(1))
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Expected)
	assert.Equal(t, int64(2), outcome.Deleted)
	assert.True(t, outcome.Mismatch())
	assert.True(t, h.logger.Contains("WARN", "deleted count differs"))
	assert.Equal(t, 1, h.count(t))
}

func TestDeleteScoped_Date(t *testing.T) {
	h := newHarness(t)
	h.register(t, "SN-001", "Laptop", "X1", "UP01")
	h.clock.Advance(24 * time.Hour)
	h.register(t, "SN-002", "Laptop", "X1", "UP01")

	res, err := h.svc.Search(bodega.ScopeByDate, "15/01/2024")
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())

	outcome, err := h.svc.DeleteScoped(res, yes(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.Deleted)

	remaining, err := h.svc.Search(bodega.ScopeAll, "")
	require.NoError(t, err)
	require.Equal(t, 1, remaining.Count())
	assert.Equal(t, "SN-002", remaining.Devices[0].SerialNo)
}

func TestDeleteScoped_DateCoarserThanDay(t *testing.T) {
	h := newHarness(t)
	for i, serial := range []string{"SN-001", "SN-002", "SN-003", "SN-004"} {
		if i > 0 {
			h.clock.Advance(40 * 24 * time.Hour)
		}
		h.register(t, serial, "Laptop", "X1", "UP01")
	}

	for _, term := range []string{"2024", "01/2024", "2024-02"} {
		t.Run(term, func(t *testing.T) {
			res, err := h.svc.Search(bodega.ScopeByDate, term)
			require.NoError(t, err)
			require.NotZero(t, res.Count())

			confirmer := yes(2)
			outcome, err := h.svc.DeleteScoped(res, confirmer)
			assert.ErrorIs(t, err, bodega.ErrScopeBlocked)
			assert.ErrorContains(t, err, "single day")
			assert.Equal(t, bodega.VerdictBlocked, outcome.Decision.Verdict)
			assert.Empty(t, confirmer.asked)
			assert.Equal(t, 4, h.count(t))
		})
	}
}

func TestDeleteScoped_Empty(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Search(bodega.ScopeBySerial, "missing")
	require.NoError(t, err)

	_, err = h.svc.DeleteScoped(res, yes(1))
	assert.True(t, errors.Is(err, bodega.ErrNoResults))

	_, err = h.svc.DeleteScoped(nil, yes(1))
	assert.Error(t, err)
}

func TestDeleteScoped_ConfirmerError(t *testing.T) {
	h := newHarness(t)
	h.register(t, "SN-001", "Laptop", "X1", "UP01")
	res, err := h.svc.Search(bodega.ScopeBySerial, "SN-001")
	require.NoError(t, err)

	failing := bodega.ConfirmFunc(func(string) (bool, error) {
		return false, errors.New("terminal closed")
	})
	_, err = h.svc.DeleteScoped(res, failing)
	assert.ErrorContains(t, err, "terminal closed")
	assert.Equal(t, 1, h.count(t))
}

func TestDeleteRecord(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		h := newHarness(t)
		id := h.register(t, "SN-001", "Laptop", "X1", "UP01")
		h.register(t, "SN-002", "Laptop", "X1", "UP01")

		confirmer := yes(1)
		outcome, err := h.svc.DeleteRecord(id, confirmer)
		require.NoError(t, err)
		assert.Len(t, confirmer.asked, 1)
		assert.Equal(t, bodega.VerdictAllowed, outcome.Decision.Verdict)
		assert.Equal(t, int64(1), outcome.Deleted)

		_, err = h.svc.Get(id)
		assert.True(t, errors.Is(err, bodega.ErrNotFound))
		assert.Equal(t, 1, h.count(t))
	})

	t.Run("declined", func(t *testing.T) {
		h := newHarness(t)
		id := h.register(t, "SN-001", "Laptop", "X1", "UP01")

		outcome, err := h.svc.DeleteRecord(id, &scriptedConfirmer{answers: []bool{false}})
		require.NoError(t, err)
		assert.False(t, outcome.Confirmed)
		assert.Equal(t, 1, h.count(t))
	})

	t.Run("unknown id", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.DeleteRecord(7, yes(1))
		assert.True(t, errors.Is(err, bodega.ErrNotFound))
	})
}
