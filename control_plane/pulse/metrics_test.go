package pulse

import (
	"math"
	"testing"
)

func samplePlayer() BoxscorePlayerStat {
	return BoxscorePlayerStat{
		PlayerID:      "p1",
		MinutesPlayed: 30,
		Points:        24,
		Rebounds:      8,
		Assists:       6,
		Steals:        2,
		Blocks:        1,
		Turnovers:     3,
		FGMade:        9,
		FGAttempted:   18,
		FG3Made:       2,
		FTMade:        4,
		FTAttempted:   5,
		PersonalFouls: 2,
		PlusMinus:     12,
	}
}

func TestPIEClampsDenominator(t *testing.T) {
	p := samplePlayer()
	early := PIE(p, 2) // early-game noise, denominator clamped to 10
	clamped := PIE(p, 10)
	if early != clamped {
		t.Fatalf("expected denominator clamp at 10, got %v vs %v", early, clamped)
	}
	full := PIE(p, 200)
	if full >= early {
		t.Fatal("expected a larger combined total to dilute impact")
	}
}

func TestShootingPercentages(t *testing.T) {
	p := samplePlayer()
	ts := TSPercent(p)
	want := 24.0 / (2 * (18 + 0.44*5))
	if math.Abs(ts-want) > 1e-9 {
		t.Fatalf("TS%%: got %v, want %v", ts, want)
	}

	efg := EFGPercent(p)
	wantEFG := (9 + 0.5*2) / 18.0
	if math.Abs(efg-wantEFG) > 1e-9 {
		t.Fatalf("eFG%%: got %v, want %v", efg, wantEFG)
	}

	zero := BoxscorePlayerStat{}
	if TSPercent(zero) != 0 || EFGPercent(zero) != 0 {
		t.Fatal("expected zero-attempt players to score 0, not NaN")
	}
}

func TestPlusMinusLabels(t *testing.T) {
	cases := []struct {
		plusMinus float64
		minutes   float64
		want      string
	}{
		{18, 30, "dominant"},
		{6, 30, "positive"},
		{-6, 30, "negative"},
		{-24, 30, "liability"},
		{0, 0, "liability"},
	}
	for _, c := range cases {
		_, label := PlusMinusPerMin(BoxscorePlayerStat{PlusMinus: c.plusMinus, MinutesPlayed: c.minutes})
		if label != c.want {
			t.Fatalf("plus/minus %v over %v min: got %s, want %s", c.plusMinus, c.minutes, label, c.want)
		}
	}
}

func TestFatiguePenaltyCaps(t *testing.T) {
	if got := FatiguePenalty(BoxscorePlayerStat{MinutesPlayed: 28}); got != 0 {
		t.Fatalf("expected no penalty under normal load, got %v", got)
	}
	if got := FatiguePenalty(BoxscorePlayerStat{MinutesPlayed: 60}); got != 0.15 {
		t.Fatalf("expected penalty capped at 0.15, got %v", got)
	}
}

func TestMatchupDifficultyTriThreshold(t *testing.T) {
	if got := MatchupDifficulty(108); got != "elite" {
		t.Fatalf("expected elite defense bucket, got %s", got)
	}
	if got := MatchupDifficulty(118); got != "soft" {
		t.Fatalf("expected soft defense bucket, got %s", got)
	}
	if got := MatchupDifficulty(113); got != "average" {
		t.Fatalf("expected average bucket, got %s", got)
	}
}

func TestHeatScale(t *testing.T) {
	baseline := SeasonBaseline{RollingTS: 0.55}
	if got := HeatScale(0.65, baseline); got != "hot" {
		t.Fatalf("expected hot, got %s", got)
	}
	if got := HeatScale(0.45, baseline); got != "cold" {
		t.Fatalf("expected cold, got %s", got)
	}
	if got := HeatScale(0.56, baseline); got != "steady" {
		t.Fatalf("expected steady, got %s", got)
	}
	if got := HeatScale(0.9, SeasonBaseline{}); got != "steady" {
		t.Fatal("expected steady when no baseline exists")
	}
}

func TestGarbageTimeAndGamePhase(t *testing.T) {
	if !GarbageTime(4, 120, 25) {
		t.Fatal("expected garbage time in Q4, 2 minutes left, 25-point margin")
	}
	if GarbageTime(3, 120, 25) {
		t.Fatal("expected no garbage time before Q4")
	}

	if got := GamePhase(4, 120, 25); got != "garbage" {
		t.Fatalf("expected garbage phase, got %s", got)
	}
	if got := GamePhase(2, 300, 25); got != "blowout" {
		t.Fatalf("expected blowout phase, got %s", got)
	}
	if got := GamePhase(4, 300, 3); got != "clutch" {
		t.Fatalf("expected clutch phase, got %s", got)
	}
	if got := GamePhase(2, 300, 8); got != "normal" {
		t.Fatalf("expected normal phase, got %s", got)
	}
}

func TestUsageVacuumAgainstBaseline(t *testing.T) {
	if got := UsageVacuum(28, SeasonBaseline{UsageRate: 22}); got != 6 {
		t.Fatalf("expected vacuum of 6, got %v", got)
	}
	if got := UsageVacuum(28, SeasonBaseline{}); got != 0 {
		t.Fatal("expected no vacuum signal without a baseline")
	}
}
