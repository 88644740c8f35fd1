package hours

import (
	"strconv"
	"strings"
	"time"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// parseClock converte "08:30" em minutos desde meia-noite; -1 se vazio/inválido.
func parseClock(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}

func inInterval(nowMin, start, end int) bool {
	if start < 0 || end < 0 {
		return false
	}
	return nowMin >= start && nowMin < end
}

// InActivity responde se "now" cai dentro da tabela semanal. Cada dia tem
// até dois intervalos; dia sem intervalos válidos está fechado.
func InActivity(schedules []model.Schedule, now time.Time) bool {
	nowMin := now.Hour()*60 + now.Minute()

	for _, s := range schedules {
		if s.Weekday != now.Weekday() {
			continue
		}
		if inInterval(nowMin, parseClock(s.StartTimeA), parseClock(s.EndTimeA)) {
			return true
		}
		if inInterval(nowMin, parseClock(s.StartTimeB), parseClock(s.EndTimeB)) {
			return true
		}
	}
	return false
}
