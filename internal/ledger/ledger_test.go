package ledger

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-trade-gate/internal/state"
)

func newTestLedger(t *testing.T, capital float64) (*CapitalLedger, *state.FileStore) {
	t.Helper()
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "cash_gate_state.json"))
	require.NoError(t, err)
	return NewCapitalLedger(Config{InitialCapital: capital, MaxPositionFraction: 0.03}, store, nil), store
}

func TestCanReserve(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	tests := []struct {
		name   string
		amount float64
		want   bool
	}{
		{"zero", 0, false},
		{"negative", -5, false},
		{"at per-trade cap", 30, true},
		{"above per-trade cap", 31, false},
		{"small", 0.01, true},
		{"NaN", math.NaN(), false},
		{"positive infinity", math.Inf(1), false},
		{"negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := l.CanReserve(tt.amount)
			assert.Equal(t, tt.want, ok, reason)
			assert.NotEmpty(t, reason)
		})
	}

	assert.Equal(t, 0.0, l.Status().Reserved, "CanReserve must not mutate")
}

func TestReserveRejectsAboveAvailable(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	for i := 0; i < 33; i++ {
		require.True(t, l.Reserve(30))
	}
	before := l.Status()
	assert.InDelta(t, 10.0, before.Available, 1e-9)

	assert.False(t, l.Reserve(20))
	assert.Equal(t, before, l.Status())
}

func TestReserveReleaseRestoresReserved(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	require.True(t, l.Reserve(10))
	before := l.Status().Reserved

	for _, x := range []float64{0.01, 1.5, 12.345, 30} {
		require.True(t, l.Reserve(x))
		l.Release(x)
		assert.Equal(t, before, l.Status().Reserved)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	require.True(t, l.Reserve(20))

	l.Release(50)
	assert.Equal(t, 0.0, l.Status().Reserved)
	assert.Equal(t, 1000.0, l.Status().Total)

	l.Release(-1)
	assert.Equal(t, 0.0, l.Status().Reserved)
}

func TestCommit(t *testing.T) {
	t.Run("reduces both by the same amount", func(t *testing.T) {
		l, _ := newTestLedger(t, 1000)
		require.True(t, l.Reserve(30))

		l.Commit(25)
		s := l.Status()
		assert.InDelta(t, 975.0, s.Total, 1e-9)
		assert.InDelta(t, 5.0, s.Reserved, 1e-9)
	})

	t.Run("floors at zero", func(t *testing.T) {
		l, _ := newTestLedger(t, 10)
		require.True(t, l.Reserve(0.3))

		l.Commit(50)
		s := l.Status()
		assert.Equal(t, 0.0, s.Total)
		assert.Equal(t, 0.0, s.Reserved)
		assert.Equal(t, 0.0, s.Available)
	})
}

func TestDeposit(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	l.Deposit(250)
	l.Deposit(0)
	assert.Equal(t, 1250.0, l.Status().Total)
	assert.Equal(t, 1250.0, l.Available())
}

func TestNonFiniteAmountsLeaveLedgerUntouched(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	require.True(t, l.Reserve(20))
	before := l.Status()

	ops := map[string]func(float64){
		"reserve": func(x float64) { assert.False(t, l.Reserve(x)) },
		"release": l.Release,
		"commit":  l.Commit,
		"charge":  l.Charge,
		"deposit": l.Deposit,
	}
	for name, op := range ops {
		for _, x := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			t.Run(name, func(t *testing.T) {
				assert.NotPanics(t, func() { op(x) })
				assert.Equal(t, before, l.Status())
			})
		}
	}
}

func TestChargeKeepsReservations(t *testing.T) {
	l, _ := newTestLedger(t, 1000)
	require.True(t, l.Reserve(20))

	l.Charge(14.1)
	s := l.Status()
	assert.InDelta(t, 985.9, s.Total, 1e-9)
	assert.InDelta(t, 20, s.Reserved, 1e-9)

	l.Charge(5000)
	s = l.Status()
	assert.Equal(t, 0.0, s.Total)
	assert.Equal(t, 0.0, s.Reserved, "reserved never exceeds total")
}

func TestInvariantHoldsForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		l := NewCapitalLedger(Config{InitialCapital: 100 + rng.Float64()*900, MaxPositionFraction: 0.1}, nil, nil)

		for step := 0; step < 200; step++ {
			amount := rng.Float64()*120 - 10
			before := l.Status()

			switch rng.Intn(4) {
			case 0:
				ok := l.Reserve(amount)
				expected := amount > 0 && amount <= before.Available && amount <= before.Total*before.MaxFraction
				assert.Equal(t, expected, ok)
				if !ok {
					assert.Equal(t, before, l.Status())
				}
			case 1:
				l.Release(amount)
			case 2:
				l.Commit(amount)
			case 3:
				l.Deposit(amount / 10)
			}

			s := l.Status()
			require.GreaterOrEqual(t, s.Reserved, 0.0)
			require.LessOrEqual(t, s.Reserved, s.Total)
			require.GreaterOrEqual(t, s.Available, 0.0)
		}
	}
}

func TestConcurrentCallers(t *testing.T) {
	l := NewCapitalLedger(Config{InitialCapital: 100000, MaxPositionFraction: 0.03}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if l.Reserve(10) {
					l.Release(10)
				}
				l.Deposit(1)
			}
		}()
	}
	wg.Wait()

	s := l.Status()
	assert.Equal(t, 0.0, s.Reserved)
	assert.Equal(t, 102000.0, s.Total)
}

func TestPersistedStateOverridesConfig(t *testing.T) {
	l, store := newTestLedger(t, 1000)
	require.True(t, l.Reserve(30))
	l.Commit(30)
	require.True(t, l.Reserve(12))

	restored := NewCapitalLedger(Config{InitialCapital: 5000, MaxPositionFraction: 0.03}, store, nil)
	s := restored.Status()
	assert.Equal(t, 970.0, s.Total)
	assert.Equal(t, 12.0, s.Reserved)
}

func TestLoadClampsAndFillsMissingKeys(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantTotal    float64
		wantReserved float64
	}{
		{"reserved above capital", `{"current_capital": 100, "reserved": 400}`, 100, 100},
		{"missing reserved", `{"current_capital": 800}`, 800, 0},
		{"missing capital", `{"reserved": 5}`, 1000, 5},
		{"corrupt file", `{{{`, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cash_gate_state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			store, err := state.NewFileStore(path)
			require.NoError(t, err)

			l := NewCapitalLedger(Config{InitialCapital: 1000, MaxPositionFraction: 0.03}, store, nil)
			s := l.Status()
			assert.Equal(t, tt.wantTotal, s.Total)
			assert.Equal(t, tt.wantReserved, s.Reserved)
		})
	}
}

type failingStore struct{ saves int }

func (f *failingStore) Save(v interface{}) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingStore) Load(v interface{}) (bool, error) { return false, nil }

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	store := &failingStore{}
	l := NewCapitalLedger(Config{InitialCapital: 1000, MaxPositionFraction: 0.03}, store, nil)

	require.True(t, l.Reserve(30))
	l.Commit(30)

	assert.Equal(t, 970.0, l.Status().Total)
	assert.Equal(t, 2, store.saves)
}
