package tariff

import (
	"math"
	"sort"
	"time"
)

// PhaseBlock is a maximal run of consecutive same-phase intervals.
type PhaseBlock struct {
	Phase         Phase     `json:"phase"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	IntervalCount int       `json:"interval_count"`
	MinPrice      float64   `json:"min_price"`
	MaxPrice      float64   `json:"max_price"`
	AvgPrice      float64   `json:"avg_price"`

	first int
	sum   float64
}

func openBlock(iv Interval, index int) PhaseBlock {
	return PhaseBlock{
		Phase:         iv.Phase,
		Start:         iv.Start,
		End:           iv.End,
		IntervalCount: 1,
		MinPrice:      iv.Price,
		MaxPrice:      iv.Price,
		AvgPrice:      iv.Price,
		first:         index,
		sum:           iv.Price,
	}
}

func (b *PhaseBlock) extend(iv Interval) {
	b.End = iv.End
	b.IntervalCount++
	b.MinPrice = math.Min(b.MinPrice, iv.Price)
	b.MaxPrice = math.Max(b.MaxPrice, iv.Price)
	b.sum += iv.Price
	b.AvgPrice = b.sum / float64(b.IntervalCount)
}

// Duration returns End-Start.
func (b PhaseBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Contains reports start <= t < end.
func (b PhaseBlock) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// BlockSummary is the published view of a block.
type BlockSummary struct {
	Phase           Phase     `json:"phase"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	IntervalCount   int       `json:"interval_count"`
	MinPrice        float64   `json:"min_price"`
	MaxPrice        float64   `json:"max_price"`
	AvgPrice        float64   `json:"avg_price"`
}

// Summary converts the block for publication.
func (b PhaseBlock) Summary() *BlockSummary {
	return &BlockSummary{
		Phase:           b.Phase,
		Start:           b.Start,
		End:             b.End,
		DurationMinutes: int(b.Duration() / time.Minute),
		IntervalCount:   b.IntervalCount,
		MinPrice:        b.MinPrice,
		MaxPrice:        b.MaxPrice,
		AvgPrice:        b.AvgPrice,
	}
}

// BlockIndex merges a sorted interval sequence into blocks and answers
// point and sequence queries over them.
type BlockIndex struct {
	intervals []Interval
	blocks    []PhaseBlock
	blockOf   []int
	byStart   map[int64]int
}

// BuildBlockIndex walks intervals once. The caller supplies them sorted by
// start; they are not re-sorted here.
func BuildBlockIndex(intervals []Interval) *BlockIndex {
	idx := &BlockIndex{
		intervals: cloneIntervals(intervals),
		blockOf:   make([]int, len(intervals)),
		byStart:   make(map[int64]int, len(intervals)),
	}
	for i, iv := range idx.intervals {
		idx.byStart[iv.Start.UnixNano()] = i
		last := len(idx.blocks) - 1
		if last >= 0 && SamePhase(idx.blocks[last].Phase, iv.Phase) {
			idx.blocks[last].extend(iv)
		} else {
			idx.blocks = append(idx.blocks, openBlock(iv, i))
			last++
		}
		idx.blockOf[i] = last
	}
	return idx
}

// Blocks returns the merged blocks in order.
func (x *BlockIndex) Blocks() []PhaseBlock {
	if x == nil {
		return nil
	}
	out := make([]PhaseBlock, len(x.blocks))
	copy(out, x.blocks)
	return out
}

// Intervals returns the source sequence.
func (x *BlockIndex) Intervals() []Interval {
	if x == nil {
		return nil
	}
	return cloneIntervals(x.intervals)
}

// BlockIntervals returns the intervals that make up b.
func (x *BlockIndex) BlockIntervals(b PhaseBlock) []Interval {
	pos, ok := x.position(b)
	if !ok {
		return nil
	}
	block := x.blocks[pos]
	return cloneIntervals(x.intervals[block.first : block.first+block.IntervalCount])
}

// BlockContaining returns the block whose interval contains t.
func (x *BlockIndex) BlockContaining(t time.Time) (PhaseBlock, bool) {
	if x == nil || len(x.intervals) == 0 {
		return PhaseBlock{}, false
	}
	i := sort.Search(len(x.intervals), func(i int) bool {
		return x.intervals[i].Start.After(t)
	})
	if i == 0 || !x.intervals[i-1].Contains(t) {
		return PhaseBlock{}, false
	}
	return x.blocks[x.blockOf[i-1]], true
}

// BlockForInterval looks iv up by start. Intervals that are not part of
// the source sequence, such as synthesized fallbacks, are not found.
func (x *BlockIndex) BlockForInterval(iv Interval) (PhaseBlock, bool) {
	if x == nil {
		return PhaseBlock{}, false
	}
	i, ok := x.byStart[iv.Start.UnixNano()]
	if !ok || !x.intervals[i].End.Equal(iv.End) {
		return PhaseBlock{}, false
	}
	return x.blocks[x.blockOf[i]], true
}

// BlockAfter returns the block following b in the merged list.
func (x *BlockIndex) BlockAfter(b PhaseBlock) (PhaseBlock, bool) {
	pos, ok := x.position(b)
	if !ok || pos+1 >= len(x.blocks) {
		return PhaseBlock{}, false
	}
	return x.blocks[pos+1], true
}

// NextBlockOfPhaseFrom scans the index's own intervals starting at or
// after from.
func (x *BlockIndex) NextBlockOfPhaseFrom(phase Phase, from time.Time) (PhaseBlock, bool) {
	if x == nil {
		return PhaseBlock{}, false
	}
	i := sort.Search(len(x.intervals), func(i int) bool {
		return !x.intervals[i].Start.Before(from)
	})
	return NextBlockOfPhase(phase, x.intervals[i:])
}

func (x *BlockIndex) position(b PhaseBlock) (int, bool) {
	if x == nil || len(x.blocks) == 0 {
		return 0, false
	}
	pos := sort.Search(len(x.blocks), func(i int) bool {
		return !x.blocks[i].Start.Before(b.Start)
	})
	if pos >= len(x.blocks) || !x.blocks[pos].Start.Equal(b.Start) {
		return 0, false
	}
	return pos, true
}

// NextBlockOfPhase finds the first interval of phase in seq and extends it
// forward through consecutive same-phase neighbours.
func NextBlockOfPhase(phase Phase, seq []Interval) (PhaseBlock, bool) {
	for i, iv := range seq {
		if !SamePhase(iv.Phase, phase) {
			continue
		}
		block := openBlock(iv, i)
		for _, next := range seq[i+1:] {
			if !SamePhase(next.Phase, phase) {
				break
			}
			block.extend(next)
		}
		return block, true
	}
	return PhaseBlock{}, false
}
