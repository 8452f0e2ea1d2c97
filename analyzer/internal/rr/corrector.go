package rr

import (
	"log"
	"math"
	"sort"
)

// Эмпирические пороги фильтра выбросов. Значения не выводятся, а подобраны на данных.
const (
	// FirstIntervalMin и FirstIntervalMax допустимая длительность первого интервала, с
	FirstIntervalMin = 0.3
	FirstIntervalMax = 1.2

	// ReferenceWindow сколько последних принятых значений входит в медиану
	ReferenceWindow = 6

	// LongInterval граница длинных интервалов, с
	LongInterval = 0.5
	// LongTolerance порог для длинных интервалов: нужны оба отклонения
	LongTolerance = 0.2
	// ShortTolerance порог для коротких интервалов: достаточно отклонения от медианы
	ShortTolerance = 0.1

	// MissedBeatMin и MissedBeatMax отношение к медиане для пропущенного удара.
	// Остаток после вставки проходит фильтр заново. Для коротких интервалов (<= LongInterval)
	// остаток дальше ShortTolerance от медианы удаляется: при отношении 2.2 теряется
	// еще 1.2 медианы.
	MissedBeatMin = 1.8
	MissedBeatMax = 2.2

	// EctopicMin и EctopicMax отношение к медиане для короткой части эктопического разбиения.
	// Вторая часть разбиения, как и остаток пропущенного удара, проходит фильтр заново.
	EctopicMin = 0.675
	EctopicMax = 0.825

	// SplineTolerance допустимое отклонение сплайнового значения от медианы;
	// при большем отклонении берется сама медиана
	SplineTolerance = 0.15
	// SplineNeighbours сколько корректных интервалов берется с каждой стороны
	SplineNeighbours = 2
)

// Report итог коррекции. Удаленные интервалы являются потерей данных
// и всегда отражаются в отчете.
type Report struct {
	Input    int `json:"input"`
	Output   int `json:"output"`
	Deleted  int `json:"deleted"`
	Inserted int `json:"inserted"`
	Ectopic  int `json:"ectopic"`
	Repaired int `json:"repaired"`
	// Flagged сколько интервалов получили флаг выброса за этот проход
	Flagged int `json:"flagged"`
	// DeletedAt отсчеты начала удаленных интервалов
	DeletedAt []int64 `json:"deleted_at,omitempty"`
}

// Changes общее количество правок
func (r Report) Changes() int {
	return r.Deleted + r.Inserted + r.Flagged + r.Repaired
}

// Corrector однопроходная коррекция последовательности RR-интервалов
type Corrector struct {
	// KeepUnexplained вместо удаления необъяснимого интервала помечать его
	// и восстанавливать значение кубическим сплайном
	KeepUnexplained bool
	// Quiet отключает журнал удалений
	Quiet bool
}

// Correct исправляет последовательность на месте
func (c Corrector) Correct(seq *Sequence) Report {
	rep := Report{Input: seq.Len()}
	var history []int64
	var lastAccepted *Interval
	var repair []Handle

	flag := func(iv *Interval) {
		if !iv.Outlier {
			iv.Outlier = true
			rep.Flagged++
		}
	}
	accept := func(iv *Interval) {
		history = append(history, iv.Value)
		if len(history) > ReferenceWindow {
			history = history[1:]
		}
		lastAccepted = iv
	}

	for i := 0; i < seq.Len(); {
		cur := seq.At(i)

		if lastAccepted == nil {
			if c.plausibleFirst(seq, cur) {
				cur.Reference = cur.Value
				accept(cur)
				i++
				continue
			}
			c.delete(seq, i, &rep, "implausible first interval")
			continue
		}

		ref := median(history)
		cur.Reference = ref
		value := float64(cur.Value)
		refDiff := math.Abs(value-float64(ref)) / float64(ref)
		prevDiff := refDiff
		if prev := seq.At(i - 1); !prev.Outlier && prev.Value > 0 {
			prevDiff = math.Abs(value-float64(prev.Value)) / float64(prev.Value)
		}

		if !isOutlier(cur.Seconds(seq.Rate), refDiff, prevDiff) {
			accept(cur)
			i++
			continue
		}

		ratio := value / float64(ref)
		switch {
		case ratio >= MissedBeatMin && ratio <= MissedBeatMax:
			// пропущенный удар: вставляем интервал длиной в медиану, текущий сдвигаем
			inserted := &Interval{
				Value:     ref,
				Timestamp: cur.Timestamp,
				Reference: ref,
				RPeak1:    cur.RPeak1,
			}
			cur.Timestamp += ref
			cur.Value -= ref
			cur.RPeak1 = nil
			seq.Insert(i, inserted)
			flag(inserted)
			accept(inserted)
			rep.Inserted++
			// остаток проверяется заново на позиции i+1
			i++

		case ratio >= EctopicMin && ratio <= EctopicMax && i+1 < seq.Len() && ectopicPair(cur, seq.At(i+1), ref):
			// разбиение отсчитывается от последнего R-зубца перед текущим интервалом
			next := seq.At(i + 1)
			start := seq.At(i - 1).End()
			end := next.End()
			cur.Timestamp = start
			cur.Value = ref
			next.Timestamp = start + ref
			next.Value = end - next.Timestamp
			next.Reference = ref
			flag(cur)
			flag(next)
			accept(cur)
			rep.Ectopic++
			// остаток проверяется заново на позиции i+1
			i++

		case c.KeepUnexplained:
			flag(cur)
			repair = append(repair, cur.Handle)
			i++

		default:
			c.delete(seq, i, &rep, "no ratio match")
		}
	}

	for _, h := range repair {
		if c.splineRepair(seq, h) {
			rep.Repaired++
		}
	}

	rep.Output = seq.Len()
	return rep
}

func (c Corrector) plausibleFirst(seq *Sequence, iv *Interval) bool {
	sec := iv.Seconds(seq.Rate)
	return sec >= FirstIntervalMin && sec <= FirstIntervalMax
}

// ectopicPair сумма текущего и следующего интервалов соответствует двум периодам
func ectopicPair(cur, next *Interval, ref int64) bool {
	sum := float64(cur.Value+next.Value) / float64(ref)
	return sum >= MissedBeatMin && sum <= MissedBeatMax
}

func (c Corrector) delete(seq *Sequence, i int, rep *Report, reason string) {
	iv := seq.Delete(i)
	rep.Deleted++
	rep.DeletedAt = append(rep.DeletedAt, iv.Timestamp)
	if !c.Quiet {
		log.Printf("[RR] Interval deleted: ts=%d value=%d ref=%d reason=%s",
			iv.Timestamp, iv.Value, iv.Reference, reason)
	}
}

// isOutlier процентный фильтр
func isOutlier(seconds, refDiff, prevDiff float64) bool {
	if seconds > LongInterval {
		return refDiff > LongTolerance && prevDiff > LongTolerance
	}
	return refDiff > ShortTolerance
}

// splineRepair заменяет значение помеченного интервала сплайном по двум корректным
// интервалам до и двум после
func (c Corrector) splineRepair(seq *Sequence, h Handle) bool {
	target, ok := seq.Get(h)
	if !ok {
		return false
	}
	pos := -1
	for i := 0; i < seq.Len(); i++ {
		if seq.At(i).Handle == h {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false
	}

	var before, after []*Interval
	for i := pos - 1; i >= 0 && len(before) < SplineNeighbours; i-- {
		if iv := seq.At(i); !iv.Outlier {
			before = append([]*Interval{iv}, before...)
		}
	}
	for i := pos + 1; i < seq.Len() && len(after) < SplineNeighbours; i++ {
		if iv := seq.At(i); !iv.Outlier {
			after = append(after, iv)
		}
	}

	value := target.Reference
	knots := append(before, after...)
	if len(before) > 0 && len(after) > 0 && len(knots) >= 2 {
		x := make([]float64, len(knots))
		y := make([]float64, len(knots))
		for i, iv := range knots {
			x[i] = float64(iv.Timestamp)
			y[i] = float64(iv.Value)
		}
		if s, err := NewSpline(x, y); err == nil {
			v := int64(math.Round(s.At(float64(target.Timestamp))))
			if target.Reference > 0 &&
				math.Abs(float64(v-target.Reference))/float64(target.Reference) <= SplineTolerance {
				value = v
			}
		}
	}

	if value <= 0 || value == target.Value {
		return false
	}
	target.Value = value
	return true
}

// median медиана; для четного количества среднее двух центральных, округленное
func median(values []int64) int64 {
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return int64(math.Round(float64(sorted[n/2-1]+sorted[n/2]) / 2))
}
