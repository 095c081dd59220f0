package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// CorrectReward is the flat score awarded for a correct answer.
const CorrectReward = 100

// Outcome is the grading result of one player for one question.
type Outcome struct {
	ConnID       string
	Correct      bool
	CorrectIndex int
	Delta        int
}

// Score grades every rostered player against the question. Players without a
// recorded answer are incorrect. Results follow roster order.
func Score(question domain.Question, answers map[string]int, roster []*domain.Player) []Outcome {
	outcomes := make([]Outcome, 0, len(roster))
	for _, player := range roster {
		selected, answered := answers[player.ConnID]
		correct := answered && selected == question.CorrectIndex
		delta := 0
		if correct {
			delta = CorrectReward
		}
		outcomes = append(outcomes, Outcome{
			ConnID:       player.ConnID,
			Correct:      correct,
			CorrectIndex: question.CorrectIndex,
			Delta:        delta,
		})
	}
	return outcomes
}

// Leaderboard ranks players by score, highest first. Ties keep join order.
func Leaderboard(roster []*domain.Player) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(roster))
	for _, player := range roster {
		entries = append(entries, domain.LeaderboardEntry{Nickname: player.Nickname, Score: player.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
