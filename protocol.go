package main

import "encoding/json"

// Client -> Server message types
const (
	MsgCreate = "create" // create session
	MsgJoin   = "join"
	MsgLeave  = "leave"
	MsgList   = "list"  // list sessions
	MsgCheck  = "check" // check if session exists

	MsgAnswer  = "answer"
	MsgReady   = "playerReady"
	MsgSpecial = "useSpecial"
	MsgStart   = "startGame"

	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth"
	MsgProfile  = "profile"
)

// Server -> Client message types. State frames carry no envelope: they go
// out as raw msgpack binary messages.
const (
	MsgWelcome  = "welcome"
	MsgJoined   = "joined"
	MsgCreated  = "created" // session created, client should navigate
	MsgSessions = "sessions"
	MsgChecked  = "checked"
	MsgError    = "error"

	MsgAnswered = "playerAnswered"
	MsgReadySet = "playerReady"
	MsgCanStart = "canStart"
	MsgStarted  = "gameStarted"
	MsgFinished = "gameFinished"
	MsgUnlocked = "achievements"

	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg is sent when a player wants to create a session
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
	Difficulty  string `json:"difficulty"` // easy|medium|hard, anything else falls back to easy
}

// JoinMsg is sent when a player wants to join a session
type JoinMsg struct {
	Name      string     `json:"name"`
	SessionID string     `json:"sid"`
	Character *Character `json:"character,omitempty"`
}

// AnswerMsg carries a player's answer to their current question
type AnswerMsg struct {
	Answer int `json:"answer"`
}

// ReadyMsg toggles the lobby ready flag
type ReadyMsg struct {
	IsReady bool `json:"isReady"`
}

// SpecialMsg activates a special ability once the meter is full
type SpecialMsg struct {
	Type     string `json:"type"` // "boost" or "attack"
	TargetID string `json:"targetId,omitempty"`
}

// CheckMsg is sent by a client to check if a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check
type CheckedMsg struct {
	SID        string `json:"sid"`
	Exists     bool   `json:"exists"`
	Name       string `json:"name,omitempty"`
	Players    int    `json:"players,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// PlayerState is mirrored per racer in every state frame.
// The current question's answer is deliberately absent.
type PlayerState struct {
	ID           string     `json:"id" msgpack:"id"`
	Name         string     `json:"n" msgpack:"n"`
	Color        string     `json:"c" msgpack:"c"`
	Character    *Character `json:"ch,omitempty" msgpack:"ch,omitempty"`
	X            float64    `json:"x" msgpack:"x"`
	Y            float64    `json:"y" msgpack:"y"`
	Speed        float64    `json:"sp" msgpack:"sp"`
	Score        int        `json:"sc" msgpack:"sc"`
	SpecialMeter float64    `json:"m" msgpack:"m"`
	Question     string     `json:"q" msgpack:"q"`
	QuestionDiff string     `json:"qd" msgpack:"qd"`
	Timer        float64    `json:"qt" msgpack:"qt"` // ms left on the question
	Ready        bool       `json:"r" msgpack:"r"`
	Active       bool       `json:"a" msgpack:"a"`
	Position     int        `json:"pos" msgpack:"pos"`
	LapProgress  float64    `json:"lp" msgpack:"lp"`
}

// GameState is the full session state pushed to clients as binary frames
type GameState struct {
	Phase           string        `json:"phase" msgpack:"phase"`
	StageDifficulty string        `json:"diff" msgpack:"diff"`
	TrackDistance   float64       `json:"track" msgpack:"track"`
	Winner          string        `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Players         []PlayerState `json:"p" msgpack:"p"`
	Tick            uint64        `json:"tick" msgpack:"tick"`
}

// WelcomeMsg is sent to a player right after joining
type WelcomeMsg struct {
	ID            string  `json:"id"`
	Color         string  `json:"color"`
	TrackDistance float64 `json:"trackDistance"`
}

// PlayerAnsweredMsg is broadcast after every answer attempt.
// NewScore is only present on correct answers.
type PlayerAnsweredMsg struct {
	PlayerID string  `json:"playerId"`
	Correct  bool    `json:"correct"`
	NewSpeed float64 `json:"newSpeed"`
	NewScore int     `json:"newScore,omitempty"`
}

// PlayerReadyMsg is broadcast when a racer toggles ready
type PlayerReadyMsg struct {
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
}

// CanStartMsg is broadcast once the lobby reaches the start threshold
type CanStartMsg struct {
	PlayersNeeded int `json:"playersNeeded"`
}

// GameStartedMsg is broadcast on the waiting -> racing transition
type GameStartedMsg struct {
	TrackDistance   float64 `json:"trackDistance"`
	StageDifficulty string  `json:"stageDifficulty"`
}

// StandingEntry is one row of the final standings
type StandingEntry struct {
	Position int     `json:"position"`
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	Distance float64 `json:"distance"`
}

// GameFinishedMsg is broadcast when the first racer crosses the line
type GameFinishedMsg struct {
	Winner    string          `json:"winner"`
	Standings []StandingEntry `json:"standings"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	Phase      string `json:"phase"`
	Difficulty string `json:"difficulty"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates an existing account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms register/login/auth
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	RacerID  int64  `json:"racerId"`
}

// ProfileDataMsg carries career stats for the profile screen
type ProfileDataMsg struct {
	Username       string  `json:"username"`
	Races          int     `json:"races"`
	Wins           int     `json:"wins"`
	Podiums        int     `json:"podiums"`
	TotalScore     int     `json:"totalScore"`
	CorrectAnswers int     `json:"correctAnswers"`
	WrongAnswers   int     `json:"wrongAnswers"`
	Distance       float64 `json:"distance"`
	BestTime       float64 `json:"bestTime"`
}

// UnlockedMsg lists achievements earned at race end
type UnlockedMsg struct {
	Achievements []AchievementDef `json:"achievements"`
}
