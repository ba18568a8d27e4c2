package analytics

// StreakTracker tracks the longest consecutive win and loss runs.
// A P&L of zero counts as a loss. MaxWin and MaxLoss only hold runs that a
// sign flip has ended; the run still open at the last exit is not counted.
type StreakTracker struct {
	prevSign    int // -1 loss, 1 win, 0 before the first trade
	RunningWin  int
	RunningLoss int
	MaxWin      int
	MaxLoss     int
}

// Record feeds one closed-leg P&L into the tracker.
func (s *StreakTracker) Record(pnl float64) {
	sign := -1
	if pnl > 0 {
		sign = 1
	}

	switch {
	case sign == s.prevSign && sign > 0:
		s.RunningWin++
	case sign == s.prevSign:
		s.RunningLoss++
	case sign > 0:
		s.MaxLoss = max(s.MaxLoss, s.RunningLoss)
		s.RunningLoss = 0
		s.RunningWin = 1
	default:
		s.MaxWin = max(s.MaxWin, s.RunningWin)
		s.RunningWin = 0
		s.RunningLoss = 1
	}
	s.prevSign = sign
}
