package main

import "math/rand"

const (
	StartSpeed   = 50.0 // units/s at the starting line
	DecayFloor   = 30.0 // idle drag never slows below this
	TimeoutFloor = 20.0 // question timeout penalty can go lower than drag
	WrongFloor   = 30.0 // wrong answer penalty floor

	SpeedDecayRate = 2.0  // units/s lost per second of idling
	TimeoutPenalty = 15.0 // speed lost when the question timer runs out
	WrongPenalty   = 10.0 // speed lost on a wrong answer
	MeterMax       = 100.0
	MeterPerAnswer = 15.0

	LaneBaseY   = 100.0
	LaneSpacing = 120.0
)

// kartColors is the palette karts are drawn from on join
var kartColors = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FECA57", "#FF9FF3", "#54A0FF",
}

// Character is cosmetic data passed through verbatim from the join payload.
// The server never interprets it.
type Character struct {
	Name   string `json:"name" msgpack:"name"`
	Desc   string `json:"desc" msgpack:"desc"`
	Sprite string `json:"sprite" msgpack:"sprite"`
	Car    string `json:"car" msgpack:"car"`
	Trait  string `json:"trait" msgpack:"trait"`
}

// Player is the per-racer state owned by one Game
type Player struct {
	ID        string
	Name      string
	Color     string
	Character *Character // nil when the racer joined without one

	X     float64 // distance along the track
	Y     float64 // fixed lane, assigned on join
	Speed float64
	Score int

	SpecialMeter float64 // 0..100, special unlocks at 100

	QuestionText   string
	QuestionAnswer int // never sent to clients
	QuestionDiff   string
	QuestionTimer  float64 // ms remaining on the current question

	IsReady  bool
	IsActive bool

	Position    int     // race rank, recomputed every tick
	LapProgress float64 // x / trackDistance, clamped to [0,1]

	CorrectAnswers int
	WrongAnswers   int

	AuthRacerID int64 // 0 = guest
}

// NewPlayer creates a racer at the starting line in the given lane
func NewPlayer(id, name string, lane int, rng *rand.Rand) *Player {
	return &Player{
		ID:       id,
		Name:     name,
		Color:    kartColors[rng.Intn(len(kartColors))],
		X:        0,
		Y:        LaneBaseY + float64(lane)*LaneSpacing,
		Speed:    StartSpeed,
		IsActive: true,
	}
}

// SetQuestion assigns a question and resets the answer timer
func (p *Player) SetQuestion(q Question) {
	p.QuestionText = q.Text
	p.QuestionAnswer = q.Answer
	p.QuestionDiff = q.Difficulty
	p.QuestionTimer = QuestionTime
}

// HasQuestion reports whether the player has an active question
func (p *Player) HasQuestion() bool {
	return p.QuestionText != ""
}

// GainMeter adds to the special meter, clamped to [0, MeterMax]
func (p *Player) GainMeter(amount float64) {
	p.SpecialMeter = Clamp(p.SpecialMeter+amount, 0, MeterMax)
}

// ToState converts to the protocol state. The answer stays server-side.
func (p *Player) ToState() PlayerState {
	var char *Character
	if p.Character != nil {
		c := *p.Character
		char = &c
	}
	return PlayerState{
		ID:           p.ID,
		Name:         p.Name,
		Color:        p.Color,
		Character:    char,
		X:            p.X,
		Y:            p.Y,
		Speed:        p.Speed,
		Score:        p.Score,
		SpecialMeter: p.SpecialMeter,
		Question:     p.QuestionText,
		QuestionDiff: p.QuestionDiff,
		Timer:        p.QuestionTimer,
		Ready:        p.IsReady,
		Active:       p.IsActive,
		Position:     p.Position,
		LapProgress:  p.LapProgress,
	}
}
