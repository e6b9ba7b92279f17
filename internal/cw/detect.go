package cw

import (
	"sort"

	"github.com/danmuck/cwpctl/internal/protocol/wave"
)

type waveGroup struct {
	sum     int64
	count   int
	average float64
}

func (g *waveGroup) add(duration uint32) {
	g.sum += int64(duration)
	g.count++
	g.average = float64(g.sum) / float64(g.count)
}

func (g *waveGroup) inRange(width, jitter float64) bool {
	return width > g.average*(1-jitter) && width <= g.average*(1+jitter)
}

// groupsAverage folds the short, long and word-break group averages into one
// dot estimate weighted by group size.
func groupsAverage(groups *[3]waveGroup) float64 {
	scales := [3]float64{shortWidth, longWidth, wordBreakWidth}
	width := 0.0
	count := 0
	for i := range groups {
		if groups[i].count == 0 {
			continue
		}
		width += groups[i].average / scales[i] * float64(groups[i].count)
		count += groups[i].count
	}
	if count > 1 {
		width /= float64(count)
	}
	return width
}

const groupStop = 3

// detectSignalWidth estimates the dot length from the oldest limit samples,
// all of them when limit is negative. Zero means no usable estimate.
func detectSignalWidth(samples []wave.Wave, limit int, force bool) float64 {
	if len(samples) == 0 || limit == 0 {
		return 0
	}
	if limit < 0 || limit > len(samples) {
		limit = len(samples)
	}
	if limit > MaxDetectionSample {
		limit = MaxDetectionSample
	}

	sorted := make([]wave.Wave, limit)
	copy(sorted, samples[:limit])
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})

	var groups [3]waveGroup
	waitForUp := true
	checkedOk := false
	current := -1

	for _, w := range sorted {
		if w.Duration == 0 {
			continue
		}
		if waitForUp && w.Direction == wave.Down {
			continue
		}
		waitForUp = false
		checkedOk = false
		previous := current
		dur := float64(w.Duration)

		switch current {
		case -1:
			groups[0].add(w.Duration)
			current = 0
		case 0:
			switch {
			case groups[0].inRange(dur, shortJitter):
				groups[0].add(w.Duration)
			case groups[0].inRange(dur/longWidth, longJitter):
				groups[1].add(w.Duration)
				current = 1
			case groups[0].inRange(dur/wordBreakWidth, wordBreakJitter):
				groups[2].add(w.Duration)
				current = 2
			default:
				current = groupStop
			}
		case 1:
			switch {
			case groups[1].inRange(dur, longJitter) || groups[0].inRange(dur/longWidth, longJitter):
				groups[1].add(w.Duration)
			case groups[0].inRange(dur/wordBreakWidth, wordBreakJitter) ||
				groups[1].inRange(dur*longWidth/wordBreakWidth, wordBreakJitter):
				groups[2].add(w.Duration)
				current = 2
			default:
				current = groupStop
			}
		case 2:
			if groups[2].inRange(dur, wordBreakJitter) ||
				groups[1].inRange(dur*longWidth/wordBreakWidth, wordBreakJitter) ||
				groups[0].inRange(dur/wordBreakWidth, wordBreakJitter) {
				groups[2].add(w.Duration)
			} else {
				current = groupStop
			}
		}

		if previous != -1 && previous != current {
			if !widthFits(groupsAverage(&groups), samples, limit) {
				// likely mixing messages of different speeds
				return detectSignalWidth(samples, limit/2, force)
			}
			checkedOk = true
		}
		if current == groupStop {
			break
		}
	}

	width := groupsAverage(&groups)
	if !force && !checkedOk && !widthFits(width, samples, limit) {
		return 0
	}
	if width < 1 {
		width = 1
	}
	return width
}

// widthFits applies candidate to the samples in arrival order and requires at
// least one short hit plus at least one long or word-break hit before the
// first wave that fits no band.
func widthFits(candidate float64, samples []wave.Wave, limit int) bool {
	waitForUp := true
	var short, long, wordBreak int

	for i, w := range samples {
		if i >= limit {
			break
		}
		if w.Duration == 0 {
			continue
		}
		if waitForUp && w.Direction == wave.Down {
			continue
		}
		waitForUp = false

		units := float64(w.Duration) / candidate
		switch {
		case units > shortWidth*(1-shortJitter) && units <= shortWidth*(1+shortJitter):
			short++
		case units > longWidth*(1-longJitter) && units <= longWidth*(1+longJitter):
			long++
		case units > wordBreakWidth*(1-wordBreakJitter) && units <= wordBreakWidth*(1+wordBreakJitter):
			wordBreak++
		default:
			return short > 0 && short+long+wordBreak > short
		}
	}
	return short > 0 && short+long+wordBreak > short
}
