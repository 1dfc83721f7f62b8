package main

// AchievementDef describes one unlockable achievement
type AchievementDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var Achievements = []AchievementDef{
	{"first_win", "Checkered Flag", "Win your first race"},
	{"champion", "Champion", "Win 10 races"},
	{"legend", "Track Legend", "Win 50 races"},
	{"podium_regular", "Podium Regular", "Finish on the podium 10 times"},
	{"mathlete", "Mathlete", "Answer 100 questions correctly"},
	{"calculator", "Human Calculator", "Answer 1000 questions correctly"},
	{"flawless", "Flawless", "Win a race without a single wrong answer"},
	{"sprinter", "Sprinter", "Win a race in under 45 seconds"},
	{"marathon", "Marathon", "Cover 50000 units of track in your career"},
	{"point_hoarder", "Point Hoarder", "Reach 5000 career score"},
}

// CheckAchievements checks if any new achievements should unlock for a racer
// after a race. Returns the newly unlocked definitions.
func CheckAchievements(db *DB, racerID int64, result RaceResult, won bool) []AchievementDef {
	if db == nil {
		return nil
	}

	stats, err := db.GetStats(racerID)
	if err != nil || stats == nil {
		return nil
	}

	existing, err := db.GetAchievements(racerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, id := range existing {
		has[id] = true
	}

	check := func(id string) bool {
		if has[id] {
			return false
		}
		switch id {
		case "first_win":
			return stats.Wins >= 1
		case "champion":
			return stats.Wins >= 10
		case "legend":
			return stats.Wins >= 50
		case "podium_regular":
			return stats.Podiums >= 10
		case "mathlete":
			return stats.CorrectAnswers >= 100
		case "calculator":
			return stats.CorrectAnswers >= 1000
		case "flawless":
			return won && result.Wrong == 0
		case "sprinter":
			return won && stats.BestTime > 0 && stats.BestTime < 45
		case "marathon":
			return stats.Distance >= 50000
		case "point_hoarder":
			return stats.TotalScore >= 5000
		}
		return false
	}

	var unlocked []AchievementDef
	for _, def := range Achievements {
		if check(def.ID) {
			if fresh, err := db.UnlockAchievement(racerID, def.ID); err == nil && fresh {
				unlocked = append(unlocked, def)
			}
		}
	}
	return unlocked
}
