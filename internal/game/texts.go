package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/EgorKulikov/svoyak-bot/internal/store"
)

// PlayerList renders "Имя (рейтинг), Имя (рейтинг), ..." for
// announcements.
func PlayerList(users []store.User) string {
	var b strings.Builder
	for i, user := range users {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", user.EscapedName(), store.DisplayRating(user.Rating))
	}
	return b.String()
}

// scoreTable renders player names with scores, highest first.
func scoreTable(players map[int64]*Player) string {
	type row struct {
		name  string
		score int
	}
	rows := make([]row, 0, len(players))
	for _, player := range players {
		rows = append(rows, row{name: player.User.EscapedName(), score: player.Score})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %d\n", r.name, r.score)
	}
	return b.String()
}

func minuteWord(minutes int) string {
	if minutes == 1 {
		return "минуту"
	}
	return "минуты"
}
