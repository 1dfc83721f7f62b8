package main

import (
	"fmt"
	"math/rand"
)

// Difficulty tiers
const (
	DiffEasy   = "easy"
	DiffMedium = "medium"
	DiffHard   = "hard"
)

// Question kinds. Kind never changes how numbers are drawn, only which
// difficulty is fed in: special and attack questions are escalated one tier.
const (
	KindRegular = "regular"
	KindSpecial = "special"
	KindAttack  = "attack"
)

const (
	additionChance = 0.7
	QuestionTime   = 8000.0 // ms to answer before the timeout penalty hits
)

type operandRange struct {
	Min, Max int
}

var questionRanges = map[string]operandRange{
	DiffEasy:   {1, 10},
	DiffMedium: {10, 50},
	DiffHard:   {20, 100},
}

// SpeedBoosts is the speed gain for a correct answer, by question difficulty
var SpeedBoosts = map[string]float64{
	DiffEasy:   15,
	DiffMedium: 25,
	DiffHard:   40,
}

// ScorePoints is the score gain for a correct answer, by question difficulty
var ScorePoints = map[string]int{
	DiffEasy:   10,
	DiffMedium: 20,
	DiffHard:   35,
}

var diffTier = map[string]int{
	DiffEasy:   0,
	DiffMedium: 1,
	DiffHard:   2,
}

// ValidDifficulty reports whether s is one of the three difficulty tiers
func ValidDifficulty(s string) bool {
	_, ok := diffTier[s]
	return ok
}

func maxDifficulty(a, b string) string {
	if diffTier[a] >= diffTier[b] {
		return a
	}
	return b
}

// Question is one arithmetic problem handed to a single player
type Question struct {
	Text       string
	Answer     int
	Difficulty string
	Kind       string
}

// GenerateQuestion creates an addition (70%) or subtraction problem with
// operands drawn from the difficulty's range. Subtraction draws the second
// operand from [1, first] so the answer is never negative.
func GenerateQuestion(rng *rand.Rand, difficulty, kind string) Question {
	r, ok := questionRanges[difficulty]
	if !ok {
		difficulty = DiffEasy
		r = questionRanges[DiffEasy]
	}

	if rng.Float64() < additionChance {
		a := r.Min + rng.Intn(r.Max-r.Min+1)
		b := r.Min + rng.Intn(r.Max-r.Min+1)
		return Question{
			Text:       fmt.Sprintf("%d + %d", a, b),
			Answer:     a + b,
			Difficulty: difficulty,
			Kind:       kind,
		}
	}

	a := r.Min + rng.Intn(r.Max-r.Min+1)
	b := 1 + rng.Intn(a)
	return Question{
		Text:       fmt.Sprintf("%d - %d", a, b),
		Answer:     a - b,
		Difficulty: difficulty,
		Kind:       kind,
	}
}

// SelectDifficulty picks the difficulty for a player's next question.
// progress is the fractional track position (x / trackDistance). Progress
// escalation only ever raises the stage floor. Special and attack questions
// are bumped one further tier and are never easy.
func SelectDifficulty(progress float64, stageDifficulty, kind string) string {
	diff := stageDifficulty
	if !ValidDifficulty(diff) {
		diff = DiffEasy
	}

	if progress > 0.7 {
		diff = maxDifficulty(diff, DiffHard)
	} else if progress > 0.4 {
		diff = maxDifficulty(diff, DiffMedium)
	}

	if kind == KindSpecial || kind == KindAttack {
		if diff == DiffEasy {
			return DiffMedium
		}
		return DiffHard
	}
	return diff
}
