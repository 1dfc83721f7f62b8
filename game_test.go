package main

import (
	"math"
	"sync"
	"testing"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
	frames   [][]byte
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
}

// find returns the first envelope of the given type, or nil
func (m *mockBroadcaster) find(msgType string) *Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if env, ok := msg.(Envelope); ok && env.T == msgType {
			return &env
		}
	}
	return nil
}

func newTestGame(difficulty string) *Game {
	g := NewGame("test-session", difficulty, nil, nil)
	g.rng = testRNG()
	return g
}

// forceQuestion pins a known question on a racer
func forceQuestion(g *Game, p *Player, text string, answer int, diff string, timer float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.QuestionText = text
	p.QuestionAnswer = answer
	p.QuestionDiff = diff
	p.QuestionTimer = timer
}

func startRacing(t *testing.T, g *Game, b1, b2 Broadcaster) (*Player, *Player) {
	t.Helper()
	p1 := g.AddPlayer("One", nil, b1)
	p2 := g.AddPlayer("Two", nil, b2)
	g.HandleStart(p1.ID)
	if g.Phase() != PhaseRacing {
		t.Fatal("expected racing phase after start")
	}
	return p1, p2
}

func TestNewGameValidatesDifficulty(t *testing.T) {
	if g := newTestGame("medium"); g.StageDifficulty() != DiffMedium {
		t.Error("medium should be kept")
	}
	if g := newTestGame("impossible"); g.StageDifficulty() != DiffEasy {
		t.Error("unknown difficulty should fall back to easy")
	}
	if g := newTestGame(""); g.StageDifficulty() != DiffEasy {
		t.Error("missing difficulty should fall back to easy")
	}
}

func TestAddPlayerSeedsQuestion(t *testing.T) {
	g := newTestGame("easy")
	p := g.AddPlayer("Solo", nil, nil)
	if p == nil {
		t.Fatal("join rejected")
	}
	if !p.HasQuestion() {
		t.Error("joining should seed an initial question")
	}
	if p.QuestionTimer != QuestionTime {
		t.Errorf("question timer %f, want %f", p.QuestionTimer, QuestionTime)
	}
}

func TestAddPlayerDefaultName(t *testing.T) {
	g := newTestGame("easy")
	p := g.AddPlayer("", nil, nil)
	if len(p.Name) != len("Racer ")+4 {
		t.Errorf("default name %q should be a truncated generated identifier", p.Name)
	}
}

func TestAddPlayerLaneOffsets(t *testing.T) {
	g := newTestGame("easy")
	for i := 0; i < maxPlayersPerSession; i++ {
		p := g.AddPlayer("r", nil, nil)
		want := LaneBaseY + float64(i)*LaneSpacing
		if p.Y != want {
			t.Errorf("player %d: y = %f, want %f", i, p.Y, want)
		}
	}
}

func TestAddPlayerCapacity(t *testing.T) {
	g := newTestGame("easy")
	for i := 0; i < maxPlayersPerSession; i++ {
		if g.AddPlayer("r", nil, nil) == nil {
			t.Fatalf("join %d should succeed", i)
		}
	}
	if g.AddPlayer("overflow", nil, nil) != nil {
		t.Error("fifth join should be rejected")
	}
}

func TestAddPlayerCharacterPassthrough(t *testing.T) {
	g := newTestGame("easy")
	char := &Character{Name: "Turbo", Desc: "fast", Sprite: "t.png", Car: "kart1", Trait: "boost"}
	p := g.AddPlayer("r", char, nil)
	if p.Character == nil || p.Character.Car != "kart1" {
		t.Error("character data should pass through verbatim")
	}
	if g.AddPlayer("plain", nil, nil).Character != nil {
		t.Error("character should stay absent when not supplied")
	}
}

func TestCanStartBroadcast(t *testing.T) {
	g := newTestGame("easy")
	mock1 := &mockBroadcaster{}
	g.AddPlayer("One", nil, mock1)

	if mock1.find(MsgCanStart) != nil {
		t.Fatal("canStart should not fire with one player")
	}

	mock2 := &mockBroadcaster{}
	g.AddPlayer("Two", nil, mock2)

	env := mock1.find(MsgCanStart)
	if env == nil {
		t.Fatal("expected canStart broadcast after second join")
	}
	if cs := env.Data.(CanStartMsg); cs.PlayersNeeded != 0 {
		t.Errorf("playersNeeded = %d, want 0", cs.PlayersNeeded)
	}
	// The joiner whose arrival met the threshold is a session member too
	if mock2.find(MsgCanStart) == nil {
		t.Error("the second joiner must receive its own canStart")
	}
}

func TestStartRequiresTwoPlayers(t *testing.T) {
	g := newTestGame("medium")
	mock := &mockBroadcaster{}
	p1 := g.AddPlayer("One", nil, mock)

	g.HandleStart(p1.ID)
	if g.Phase() != PhaseWaiting {
		t.Fatal("start with one player should be ignored")
	}

	g.AddPlayer("Two", nil, nil)
	g.HandleStart(p1.ID)
	if g.Phase() != PhaseRacing {
		t.Fatal("start with two players should transition to racing")
	}

	env := mock.find(MsgStarted)
	if env == nil {
		t.Fatal("expected gameStarted broadcast")
	}
	started := env.Data.(GameStartedMsg)
	if started.TrackDistance != 2000 {
		t.Errorf("trackDistance = %f, want 2000", started.TrackDistance)
	}
	if started.StageDifficulty != DiffMedium {
		t.Errorf("stageDifficulty = %q, want medium", started.StageDifficulty)
	}
	g.Stop()
}

func TestStartFromUnknownSenderIgnored(t *testing.T) {
	g := newTestGame("easy")
	g.AddPlayer("One", nil, nil)
	g.AddPlayer("Two", nil, nil)
	g.HandleStart("ghost")
	if g.Phase() != PhaseWaiting {
		t.Error("start from unknown sender should be ignored")
	}
}

func TestAnswerCorrect(t *testing.T) {
	g := newTestGame("easy")
	mock := &mockBroadcaster{}
	p1, _ := startRacing(t, g, mock, nil)

	forceQuestion(g, p1, "2 + 2", 4, DiffEasy, 1234)
	g.HandleAnswer(p1.ID, 4)

	if p1.Speed != 65 {
		t.Errorf("speed = %f, want 65 (50 + easy boost 15)", p1.Speed)
	}
	if p1.Score != 10 {
		t.Errorf("score = %d, want 10", p1.Score)
	}
	if p1.SpecialMeter != 15 {
		t.Errorf("meter = %f, want 15", p1.SpecialMeter)
	}
	if p1.QuestionTimer != QuestionTime {
		t.Error("a fresh question should replace the answered one")
	}

	env := mock.find(MsgAnswered)
	if env == nil {
		t.Fatal("expected playerAnswered broadcast")
	}
	ans := env.Data.(PlayerAnsweredMsg)
	if !ans.Correct || ans.NewSpeed != 65 || ans.NewScore != 10 || ans.PlayerID != p1.ID {
		t.Errorf("unexpected payload %+v", ans)
	}
	g.Stop()
}

func TestAnswerCorrectHardTable(t *testing.T) {
	g := newTestGame("hard")
	p1, _ := startRacing(t, g, nil, nil)

	forceQuestion(g, p1, "90 - 30", 60, DiffHard, 1234)
	g.HandleAnswer(p1.ID, 60)

	if p1.Speed != 90 {
		t.Errorf("speed = %f, want 90 (50 + hard boost 40)", p1.Speed)
	}
	if p1.Score != 35 {
		t.Errorf("score = %d, want 35", p1.Score)
	}
	g.Stop()
}

func TestAnswerWrong(t *testing.T) {
	g := newTestGame("easy")
	mock := &mockBroadcaster{}
	p1, _ := startRacing(t, g, mock, nil)

	forceQuestion(g, p1, "2 + 2", 4, DiffEasy, 1234)
	g.HandleAnswer(p1.ID, 5)

	if p1.Speed != 40 {
		t.Errorf("speed = %f, want 40 (50 - 10)", p1.Speed)
	}
	if p1.Score != 0 || p1.SpecialMeter != 0 {
		t.Error("wrong answer must not award score or meter")
	}
	// The question is kept — the racer retries the same problem
	if p1.QuestionAnswer != 4 || p1.QuestionTimer != 1234 {
		t.Error("question should survive a wrong answer")
	}

	env := mock.find(MsgAnswered)
	if env == nil {
		t.Fatal("expected playerAnswered broadcast")
	}
	if ans := env.Data.(PlayerAnsweredMsg); ans.Correct || ans.NewSpeed != 40 {
		t.Errorf("unexpected payload %+v", ans)
	}
	g.Stop()
}

func TestAnswerWrongFloor(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)
	forceQuestion(g, p1, "2 + 2", 4, DiffEasy, 1234)

	for i := 0; i < 10; i++ {
		g.HandleAnswer(p1.ID, -1)
	}
	if p1.Speed != WrongFloor {
		t.Errorf("speed = %f, want floor %f", p1.Speed, WrongFloor)
	}
	g.Stop()
}

func TestAnswerIgnoredOutsideRacing(t *testing.T) {
	g := newTestGame("easy")
	p := g.AddPlayer("One", nil, nil)
	forceQuestion(g, p, "2 + 2", 4, DiffEasy, 1234)

	g.HandleAnswer(p.ID, 4)
	if p.Score != 0 || p.Speed != StartSpeed {
		t.Error("answers during waiting must be no-ops")
	}
}

func TestAnswerFromUnknownSenderIgnored(t *testing.T) {
	g := newTestGame("easy")
	startRacing(t, g, nil, nil)
	g.HandleAnswer("ghost", 4) // must not panic or mutate
	g.Stop()
}

func TestReadyToggle(t *testing.T) {
	g := newTestGame("easy")
	mock := &mockBroadcaster{}
	p := g.AddPlayer("One", nil, mock)

	g.HandleReady(p.ID, true)
	if !p.IsReady {
		t.Error("ready flag not set")
	}
	env := mock.find(MsgReadySet)
	if env == nil {
		t.Fatal("expected playerReady broadcast")
	}
	if pr := env.Data.(PlayerReadyMsg); !pr.IsReady || pr.PlayerID != p.ID {
		t.Errorf("unexpected payload %+v", pr)
	}

	g.HandleReady(p.ID, false)
	if p.IsReady {
		t.Error("ready flag not cleared")
	}
	// Unknown sender is silently dropped, not a crash
	g.HandleReady("ghost", true)
}

func TestSpecialRequiresFullMeter(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.SpecialMeter = 99
	g.mu.Unlock()
	forceQuestion(g, p2, "2 + 2", 4, DiffEasy, 1234)

	g.HandleSpecial(p1.ID, "attack", p2.ID)
	if p2.QuestionTimer != 1234 {
		t.Error("attack below full meter must be a no-op")
	}
	if p1.SpecialMeter != 99 {
		t.Error("meter must be untouched")
	}
	g.Stop()
}

func TestSpecialBoost(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.SpecialMeter = MeterMax
	g.mu.Unlock()

	g.HandleSpecial(p1.ID, "boost", "")
	// Stage easy at the start line escalates one tier for a special
	if p1.QuestionDiff != DiffMedium {
		t.Errorf("boost question difficulty %q, want medium", p1.QuestionDiff)
	}
	// Boost does not consume the meter; only attack does
	if p1.SpecialMeter != MeterMax {
		t.Errorf("meter = %f, want %f", p1.SpecialMeter, MeterMax)
	}
	g.Stop()
}

func TestSpecialAttack(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.SpecialMeter = MeterMax
	g.mu.Unlock()

	g.HandleSpecial(p1.ID, "attack", p2.ID)
	if p2.QuestionDiff != DiffMedium {
		t.Errorf("attack question difficulty %q, want medium", p2.QuestionDiff)
	}
	if p1.SpecialMeter != 0 {
		t.Errorf("attack should drain the caster's meter, got %f", p1.SpecialMeter)
	}
	g.Stop()
}

func TestSpecialAttackSelfRejected(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.SpecialMeter = MeterMax
	g.mu.Unlock()
	forceQuestion(g, p1, "2 + 2", 4, DiffEasy, 1234)

	g.HandleSpecial(p1.ID, "attack", p1.ID)
	if p1.QuestionTimer != 1234 {
		t.Error("self-targeted attack must not touch the question")
	}
	if p1.SpecialMeter != MeterMax {
		t.Error("self-targeted attack must not consume the meter")
	}
	g.Stop()
}

func TestSpecialAttackMissingTargetRejected(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.SpecialMeter = MeterMax
	g.mu.Unlock()

	g.HandleSpecial(p1.ID, "attack", "ghost")
	if p1.SpecialMeter != MeterMax {
		t.Error("attack on a missing target must not consume the meter")
	}
	g.Stop()
}

func TestTickPhysics(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.update()

	dt := 1.0 / float64(TickRate)
	wantSpeed := 50 - SpeedDecayRate*dt
	if math.Abs(p1.Speed-wantSpeed) > 1e-9 {
		t.Errorf("speed = %f, want %f", p1.Speed, wantSpeed)
	}
	wantX := wantSpeed * dt
	if math.Abs(p1.X-wantX) > 1e-9 {
		t.Errorf("x = %f, want %f", p1.X, wantX)
	}
	g.Stop()
}

func TestTickNoopWhileWaiting(t *testing.T) {
	g := newTestGame("easy")
	p := g.AddPlayer("One", nil, nil)
	g.update()
	if p.X != 0 || p.Speed != StartSpeed {
		t.Error("simulation must not run during waiting phase")
	}
}

func TestTickQuestionTimeout(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.Speed = 30
	p1.QuestionTimer = 0.5
	g.mu.Unlock()

	g.update()

	if p1.Speed != TimeoutFloor {
		t.Errorf("speed = %f, want timeout floor %f", p1.Speed, TimeoutFloor)
	}
	if p1.QuestionTimer != QuestionTime {
		t.Error("timeout should assign a fresh question")
	}
	g.Stop()
}

func TestTickSpeedNeverBelowGlobalFloor(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	for i := 0; i < 200; i++ {
		g.mu.Lock()
		p1.QuestionTimer = 0.1 // expire every tick
		g.mu.Unlock()
		g.update()
		if p1.Speed < TimeoutFloor || p2.Speed < TimeoutFloor {
			t.Fatalf("speed fell below the global floor: %f / %f", p1.Speed, p2.Speed)
		}
	}
	g.Stop()
}

func TestRankAndLapProgress(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.X = 100
	p2.X = 500
	g.mu.Unlock()

	g.update()

	if p2.Position != 1 || p1.Position != 2 {
		t.Errorf("positions = %d/%d, want 1 for the leader", p2.Position, p1.Position)
	}
	if math.Abs(p2.LapProgress-p2.X/2000) > 1e-6 {
		t.Errorf("lapProgress = %f", p2.LapProgress)
	}
	g.Stop()
}

func TestFinishTransition(t *testing.T) {
	g := newTestGame("easy")
	mock := &mockBroadcaster{}
	p1, p2 := startRacing(t, g, nil, mock)

	g.mu.Lock()
	p1.X = 1999.99
	p1.Score = 40
	p2.X = 600
	g.mu.Unlock()

	g.update()

	if g.Phase() != PhaseFinished {
		t.Fatal("expected finished phase")
	}
	g.mu.RLock()
	winner := g.winner
	g.mu.RUnlock()
	if winner != "One" {
		t.Errorf("winner = %q, want One", winner)
	}

	env := mock.find(MsgFinished)
	if env == nil {
		t.Fatal("expected gameFinished broadcast")
	}
	fin := env.Data.(GameFinishedMsg)
	if fin.Winner != "One" {
		t.Errorf("broadcast winner = %q", fin.Winner)
	}
	if len(fin.Standings) != 2 {
		t.Fatalf("standings size = %d", len(fin.Standings))
	}
	if fin.Standings[0].Name != "One" || fin.Standings[0].Position != 1 {
		t.Errorf("standings[0] = %+v", fin.Standings[0])
	}
	if fin.Standings[1].Name != "Two" || fin.Standings[1].Position != 2 {
		t.Errorf("standings[1] = %+v", fin.Standings[1])
	}
	if fin.Standings[0].Distance < fin.Standings[1].Distance {
		t.Error("standings must be sorted by descending distance")
	}

	// The session is sealed against further joins
	if g.AddPlayer("late", nil, nil) != nil {
		t.Error("join after finish should be rejected")
	}
	g.Stop()
}

func TestFinishTieBreakJoinOrder(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.X = 1999.99
	p2.X = 1999.99
	p1.Speed = 50
	p2.Speed = 50
	g.mu.Unlock()

	g.update()

	g.mu.RLock()
	winner := g.winner
	g.mu.RUnlock()
	if winner != "One" {
		t.Errorf("tied tick should resolve to the earlier join, got %q", winner)
	}
	g.Stop()
}

func TestRemovePlayerMidRace(t *testing.T) {
	g := newTestGame("easy")
	p1, p2 := startRacing(t, g, nil, nil)

	g.RemovePlayer(p2.ID)
	if g.PlayerCount() != 1 {
		t.Fatalf("player count = %d, want 1", g.PlayerCount())
	}
	// A single remaining racer keeps racing; no auto-abort
	if g.Phase() != PhaseRacing {
		t.Error("race should continue with one player")
	}
	g.update()
	if p1.X == 0 {
		t.Error("remaining racer should still advance")
	}
	g.Stop()
}

func TestReseedMissingQuestions(t *testing.T) {
	g := newTestGame("easy")
	p1, _ := startRacing(t, g, nil, nil)

	g.mu.Lock()
	p1.QuestionText = ""
	p1.QuestionTimer = 0
	g.mu.Unlock()

	g.reseedMissing()
	if !p1.HasQuestion() {
		t.Error("refresher should reseed a question-less racer")
	}
	g.Stop()
}
