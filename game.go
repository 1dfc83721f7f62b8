package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate       = 60 // simulation ticks per second
	BroadcastRate  = 30 // state frames per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
)

const (
	maxPlayersPerSession = 4
	minPlayersToStart    = 2
	defaultTrackDistance = 2000.0
)

// Session phases
const (
	PhaseWaiting  = "waiting"
	PhaseRacing   = "racing"
	PhaseFinished = "finished"
)

// Broadcaster is the outbound side of one connected client
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Game holds the authoritative state for one race session. All command
// handlers and the tick loop serialize on mu, so observers never see a
// state frame older than the event that announced it.
type Game struct {
	mu      sync.RWMutex
	players map[string]*Player
	order   []string // join order; lane assignment and tie-breaks depend on it
	clients map[string]Broadcaster

	phase           string
	stageDifficulty string
	trackDistance   float64
	winner          string
	startTime       time.Time

	tick    uint64
	rng     *rand.Rand
	running bool
	stop    chan struct{}

	// question refresher, armed while racing
	refresherStop chan struct{}

	sessionID string
	db        *DB
	analytics *Analytics
}

// NewGame creates a race session. An unknown difficulty falls back to easy.
func NewGame(sessionID, difficulty string, db *DB, analytics *Analytics) *Game {
	if !ValidDifficulty(difficulty) {
		difficulty = DiffEasy
	}
	return &Game{
		players:         make(map[string]*Player),
		clients:         make(map[string]Broadcaster),
		phase:           PhaseWaiting,
		stageDifficulty: difficulty,
		trackDistance:   defaultTrackDistance,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:            make(chan struct{}),
		sessionID:       sessionID,
		db:              db,
		analytics:       analytics,
	}
}

// Run starts the simulation loop
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the simulation loop and the question refresher
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopRefresher()
	if g.running {
		g.running = false
		close(g.stop)
	}
}

// AddPlayer admits a racer and registers their broadcaster, nil for none.
// Returns nil when the session is full or has already finished — the only
// two admission gates. The broadcaster is registered before any broadcast
// this join triggers, so the joiner sees its own canStart.
func (g *Game) AddPlayer(name string, char *Character, client Broadcaster) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) >= maxPlayersPerSession || g.phase == PhaseFinished {
		return nil
	}

	id := GenerateID(4)
	if name == "" {
		name = "Racer " + id[:4]
	}
	p := NewPlayer(id, name, len(g.players), g.rng)
	p.Character = char
	g.players[id] = p
	g.order = append(g.order, id)
	if client != nil {
		g.clients[id] = client
	}

	g.seedQuestion(p, KindRegular)

	if g.phase == PhaseWaiting && len(g.players) >= minPlayersToStart {
		needed := minPlayersToStart - len(g.players)
		if needed < 0 {
			needed = 0
		}
		g.broadcastMsg(Envelope{T: MsgCanStart, Data: CanStartMsg{PlayersNeeded: needed}})
	}
	return p
}

// RemovePlayer drops a racer unconditionally, in any phase. A race that
// loses all but one player keeps running until someone finishes or leaves.
func (g *Game) RemovePlayer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, id)
	delete(g.clients, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// HasPlayer reports whether a racer is in the session
func (g *Game) HasPlayer(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.players[id]
	return ok
}

// PlayerCount returns the number of racers
func (g *Game) PlayerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.players)
}

// Phase returns the current session phase
func (g *Game) Phase() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase
}

// StageDifficulty returns the difficulty fixed at creation
func (g *Game) StageDifficulty() string {
	return g.stageDifficulty
}

// HandleAnswer validates an answer against the sender's current question.
// Wrong answers keep the question — the racer retries until correct or
// until the timer expires.
func (g *Game) HandleAnswer(playerID string, answer int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseRacing {
		return
	}
	p, ok := g.players[playerID]
	if !ok {
		return
	}

	if answer == p.QuestionAnswer {
		diff := p.QuestionDiff
		p.Speed += SpeedBoosts[diff]
		p.Score += ScorePoints[diff]
		p.GainMeter(MeterPerAnswer)
		p.CorrectAnswers++
		g.seedQuestion(p, KindRegular)

		metricAnswers.WithLabelValues("correct").Inc()
		g.track(EvtAnswer, p.AuthRacerID, fmt.Sprintf(`{"correct":true,"difficulty":%q}`, diff))
		g.broadcastMsg(Envelope{T: MsgAnswered, Data: PlayerAnsweredMsg{
			PlayerID: playerID,
			Correct:  true,
			NewSpeed: p.Speed,
			NewScore: p.Score,
		}})
		return
	}

	p.Speed = math.Max(WrongFloor, p.Speed-WrongPenalty)
	p.WrongAnswers++

	metricAnswers.WithLabelValues("wrong").Inc()
	g.track(EvtAnswer, p.AuthRacerID, `{"correct":false}`)
	g.broadcastMsg(Envelope{T: MsgAnswered, Data: PlayerAnsweredMsg{
		PlayerID: playerID,
		Correct:  false,
		NewSpeed: p.Speed,
	}})
}

// HandleReady toggles the lobby ready flag. Works in any phase.
func (g *Game) HandleReady(playerID string, ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return
	}
	p.IsReady = ready
	g.broadcastMsg(Envelope{T: MsgReadySet, Data: PlayerReadyMsg{
		PlayerID: playerID,
		IsReady:  ready,
	}})
}

// HandleSpecial activates a special once the meter is full. A boost
// regenerates the caster's own question at escalated difficulty and keeps
// the meter; only an attack consumes it.
func (g *Game) HandleSpecial(playerID, kind, targetID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.SpecialMeter < MeterMax {
		return
	}

	switch kind {
	case "boost":
		g.seedQuestion(p, KindSpecial)
	case "attack":
		if targetID == playerID {
			return
		}
		target, ok := g.players[targetID]
		if !ok {
			return
		}
		g.seedQuestion(target, KindAttack)
		p.SpecialMeter = 0
	}
}

// HandleStart begins the race once at least two racers are in the lobby
func (g *Game) HandleStart(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.players[playerID]; !ok {
		return
	}
	if len(g.players) < minPlayersToStart || g.phase != PhaseWaiting {
		return
	}
	g.startGame()
}

// startGame transitions waiting -> racing. Callers hold g.mu.
func (g *Game) startGame() {
	g.phase = PhaseRacing
	g.startTime = time.Now()
	g.startRefresher()

	metricRacesStarted.Inc()
	g.track(EvtRaceStart, 0, fmt.Sprintf(`{"players":%d,"difficulty":%q}`, len(g.players), g.stageDifficulty))
	g.broadcastMsg(Envelope{T: MsgStarted, Data: GameStartedMsg{
		TrackDistance:   g.trackDistance,
		StageDifficulty: g.stageDifficulty,
	}})
}

// update runs one fixed simulation tick
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++

	if g.phase == PhaseRacing {
		dt := 1.0 / float64(TickRate)
		for _, id := range g.order {
			p := g.players[id]

			// Idle drag toward the 30-unit floor
			p.Speed = math.Max(DecayFloor, p.Speed-SpeedDecayRate*dt)
			p.X += p.Speed * dt

			if p.X >= g.trackDistance {
				// First racer to cross in a tick wins; join order breaks ties
				g.finishGame(p)
				break
			}

			if p.QuestionTimer > 0 {
				p.QuestionTimer -= dt * 1000
				if p.QuestionTimer <= 0 {
					p.Speed = math.Max(TimeoutFloor, p.Speed-TimeoutPenalty)
					g.seedQuestion(p, KindRegular)
				}
			}
		}
		g.updateRanks()
	}

	if g.tick%BroadcastEvery == 0 {
		g.broadcastState()
	}
}

// updateRanks recomputes derived position and lap progress. The sort is
// stable so racers at equal distance keep join order.
func (g *Game) updateRanks() {
	ranked := append([]string(nil), g.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return g.players[ranked[i]].X > g.players[ranked[j]].X
	})
	for i, id := range ranked {
		g.players[id].Position = i + 1
	}
	for _, p := range g.players {
		p.LapProgress = Clamp(p.X/g.trackDistance, 0, 1)
	}
}

// finishGame transitions racing -> finished. One-way and terminal: the
// session is sealed against further joins. Callers hold g.mu.
func (g *Game) finishGame(winner *Player) {
	g.phase = PhaseFinished
	g.winner = winner.Name
	g.stopRefresher()

	standings := g.standings()
	duration := time.Since(g.startTime).Seconds()

	metricRacesFinished.Inc()
	g.track(EvtRaceEnd, 0, fmt.Sprintf(`{"winner":%q,"duration":%.1f,"difficulty":%q}`,
		winner.Name, duration, g.stageDifficulty))
	g.broadcastMsg(Envelope{T: MsgFinished, Data: GameFinishedMsg{
		Winner:    winner.Name,
		Standings: standings,
	}})

	if g.db == nil {
		return
	}
	ranked := append([]string(nil), g.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return g.players[ranked[i]].X > g.players[ranked[j]].X
	})
	results := make([]RaceResult, 0, len(ranked))
	notify := make(map[int64]Broadcaster, len(g.players))
	for i, id := range ranked {
		p := g.players[id]
		results = append(results, RaceResult{
			RacerID:  p.AuthRacerID,
			Name:     p.Name,
			Position: i + 1,
			Score:    p.Score,
			Distance: p.X,
			Correct:  p.CorrectAnswers,
			Wrong:    p.WrongAnswers,
		})
		if p.AuthRacerID != 0 {
			if c, ok := g.clients[id]; ok {
				notify[p.AuthRacerID] = c
			}
		}
	}
	// DB writes happen off the tick goroutine
	go g.recordRace(results, notify, duration)
}

// recordRace persists the race, updates careers and checks achievements
func (g *Game) recordRace(results []RaceResult, notify map[int64]Broadcaster, duration float64) {
	raceID, err := g.db.RecordRace(g.stageDifficulty, duration, g.winner)
	if err != nil {
		log.Printf("record race: %v", err)
		return
	}
	for _, r := range results {
		if err := g.db.RecordRacePlayer(raceID, r); err != nil {
			log.Printf("record race player: %v", err)
		}
		if r.RacerID == 0 {
			continue
		}
		won := r.Position == 1
		if err := g.db.UpdateStatsAfterRace(r.RacerID, r, won, duration); err != nil {
			log.Printf("update stats: %v", err)
			continue
		}
		unlocked := CheckAchievements(g.db, r.RacerID, r, won)
		if len(unlocked) > 0 {
			if c, ok := notify[r.RacerID]; ok {
				c.SendJSON(Envelope{T: MsgUnlocked, Data: UnlockedMsg{Achievements: unlocked}})
			}
		}
	}
}

// standings sorts racers by descending distance; ties keep join order
func (g *Game) standings() []StandingEntry {
	ranked := append([]string(nil), g.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return g.players[ranked[i]].X > g.players[ranked[j]].X
	})
	entries := make([]StandingEntry, 0, len(ranked))
	for i, id := range ranked {
		p := g.players[id]
		entries = append(entries, StandingEntry{
			Position: i + 1,
			Name:     p.Name,
			Score:    p.Score,
			Distance: p.X,
		})
	}
	return entries
}

// seedQuestion assigns a fresh question scaled to the racer's progress.
// Callers hold g.mu.
func (g *Game) seedQuestion(p *Player, kind string) {
	diff := SelectDifficulty(p.X/g.trackDistance, g.stageDifficulty, kind)
	p.SetQuestion(GenerateQuestion(g.rng, diff, kind))
}

// startRefresher arms the background task that reseeds any racer left
// without a question. It runs at tick period as a safety net, not a
// cadence — seedQuestion on every path should keep it idle.
func (g *Game) startRefresher() {
	if g.refresherStop != nil {
		return
	}
	stopC := make(chan struct{})
	g.refresherStop = stopC

	go func() {
		ticker := time.NewTicker(TickDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.reseedMissing()
			case <-stopC:
				return
			}
		}
	}()
}

// stopRefresher cancels the refresher if armed. Callers hold g.mu.
func (g *Game) stopRefresher() {
	if g.refresherStop != nil {
		close(g.refresherStop)
		g.refresherStop = nil
	}
}

// reseedMissing gives a regular question to any racer without one
func (g *Game) reseedMissing() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseRacing {
		return
	}
	for _, id := range g.order {
		p := g.players[id]
		if !p.HasQuestion() {
			g.seedQuestion(p, KindRegular)
		}
	}
}

// snapshot builds the mirrored state tree. Callers hold g.mu.
func (g *Game) snapshot() GameState {
	state := GameState{
		Phase:           g.phase,
		StageDifficulty: g.stageDifficulty,
		TrackDistance:   g.trackDistance,
		Winner:          g.winner,
		Players:         make([]PlayerState, 0, len(g.order)),
		Tick:            g.tick,
	}
	for _, id := range g.order {
		state.Players = append(state.Players, g.players[id].ToState())
	}
	return state
}

// broadcastState pushes a msgpack-encoded state frame to every client
func (g *Game) broadcastState() {
	data, err := msgpack.Marshal(g.snapshot())
	if err != nil {
		return
	}
	for _, client := range g.clients {
		client.SendBinary(data)
	}
}

// broadcastMsg fans a JSON event out to every client in the session
func (g *Game) broadcastMsg(msg Envelope) {
	for _, client := range g.clients {
		client.SendJSON(msg)
	}
}

// track enqueues an analytics event when analytics is wired
func (g *Game) track(evtType string, racerID int64, data string) {
	if g.analytics == nil {
		return
	}
	if !json.Valid([]byte(data)) {
		data = ""
	}
	g.analytics.Track(evtType, racerID, g.sessionID, data)
}
