package persistence

import (
	"testing"
	"time"

	"stock-bot-lab/internal/domain"
)

var t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func TestTracker_TickCountFiresOnNthTick(t *testing.T) {
	tr := NewTracker(domain.PersistenceConfig{Mode: domain.PersistenceTickCount, Value: 3})

	for i := 1; i <= 5; i++ {
		st := tr.Observe("ACME", domain.DirectionBullish, t0.Add(time.Duration(i)*time.Minute))
		if st.Count != i {
			t.Fatalf("tick %d: count = %d", i, st.Count)
		}
		if want := i >= 3; st.Permitted != want {
			t.Fatalf("tick %d: permitted = %v, want %v", i, st.Permitted, want)
		}
	}
}

func TestTracker_InterruptionResetsToOne(t *testing.T) {
	tr := NewTracker(domain.PersistenceConfig{Mode: domain.PersistenceTickCount, Value: 3})

	tr.Observe("ACME", domain.DirectionBullish, t0)
	tr.Observe("ACME", domain.DirectionBullish, t0.Add(time.Minute))

	st := tr.Observe("ACME", domain.DirectionBearish, t0.Add(2*time.Minute))
	if st.Count != 1 || st.Permitted {
		t.Fatalf("after flip: count = %d permitted = %v", st.Count, st.Permitted)
	}

	st = tr.Observe("ACME", domain.DirectionBullish, t0.Add(3*time.Minute))
	if st.Count != 1 {
		t.Fatalf("next matching tick after interruption: count = %d, want 1", st.Count)
	}

	tr.Observe("ACME", domain.DirectionBullish, t0.Add(4*time.Minute))
	st = tr.Observe("ACME", domain.DirectionNeutral, t0.Add(5*time.Minute))
	if st.Count != 0 || st.Permitted {
		t.Fatalf("neutral: count = %d permitted = %v", st.Count, st.Permitted)
	}
	st = tr.Observe("ACME", domain.DirectionBullish, t0.Add(6*time.Minute))
	if st.Count != 1 {
		t.Fatalf("after neutral: count = %d, want 1", st.Count)
	}
}

func TestTracker_SymbolsAreIndependent(t *testing.T) {
	tr := NewTracker(domain.PersistenceConfig{Mode: domain.PersistenceTickCount, Value: 2})

	tr.Observe("ACME", domain.DirectionBullish, t0)
	tr.Observe("BOLT", domain.DirectionBearish, t0)
	st := tr.Observe("ACME", domain.DirectionBullish, t0.Add(time.Minute))
	if !st.Permitted {
		t.Fatal("ACME should be permitted on its second bullish tick")
	}
	if tr.Current("BOLT").Count != 1 {
		t.Fatal("BOLT history must not be affected by ACME")
	}
}

func TestTracker_TimeDuration(t *testing.T) {
	tr := NewTracker(domain.PersistenceConfig{Mode: domain.PersistenceTimeDuration, Value: 300})

	tests := []struct {
		offset time.Duration
		dir    domain.Direction
		want   bool
	}{
		{0, domain.DirectionBullish, false},
		{2 * time.Minute, domain.DirectionBullish, false},
		{5 * time.Minute, domain.DirectionBullish, true},
		{6 * time.Minute, domain.DirectionBearish, false},
		{10 * time.Minute, domain.DirectionBearish, false},
		{11 * time.Minute, domain.DirectionBearish, true},
	}
	for _, tt := range tests {
		st := tr.Observe("ACME", tt.dir, t0.Add(tt.offset))
		if st.Permitted != tt.want {
			t.Fatalf("at +%v (%s): permitted = %v, want %v (held %v)", tt.offset, tt.dir, st.Permitted, tt.want, st.Held)
		}
	}
}

func TestTracker_NoModePassesThrough(t *testing.T) {
	tr := NewTracker(domain.PersistenceConfig{})

	if !tr.Observe("ACME", domain.DirectionBearish, t0).Permitted {
		t.Fatal("unset mode must not gate a directional signal")
	}
	if tr.Observe("ACME", domain.DirectionNeutral, t0).Permitted {
		t.Fatal("neutral is never actionable")
	}
}
