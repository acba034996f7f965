// Package scoring turns graded answers into section and exam scores.
//
// All arithmetic is done on decimals at full precision. Rounding to two
// places happens only through Round2, at the point values are shown to
// a person, so error never compounds across sections.
package scoring

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type SectionInput struct {
	MaxPoints      decimal.Decimal
	WeightPercent  decimal.Decimal
	PassingPercent decimal.Decimal
	Points         []decimal.Decimal // points earned per answer
}

type SectionScore struct {
	Raw      decimal.Decimal
	Weighted decimal.Decimal
	Max      decimal.Decimal
	Percent  decimal.Decimal
	Passed   bool
}

// CalculateSectionScore sums earned points and normalizes them to the
// section's weight. A section with zero max points scores 0 percent.
func CalculateSectionScore(in SectionInput) SectionScore {
	raw := decimal.Zero
	for _, p := range in.Points {
		raw = raw.Add(p)
	}

	weighted := decimal.Zero
	percent := decimal.Zero
	if in.MaxPoints.IsPositive() {
		ratio := raw.Div(in.MaxPoints)
		weighted = ratio.Mul(in.WeightPercent)
		percent = ratio.Mul(hundred)
	}

	return SectionScore{
		Raw:      raw,
		Weighted: weighted,
		Max:      in.MaxPoints,
		Percent:  percent,
		Passed:   percent.GreaterThanOrEqual(in.PassingPercent),
	}
}

type Totals struct {
	Raw      decimal.Decimal
	Weighted decimal.Decimal
	Max      decimal.Decimal
	Percent  decimal.Decimal
}

func Aggregate(sections []SectionScore) Totals {
	t := Totals{Raw: decimal.Zero, Weighted: decimal.Zero, Max: decimal.Zero, Percent: decimal.Zero}
	for _, s := range sections {
		t.Raw = t.Raw.Add(s.Raw)
		t.Weighted = t.Weighted.Add(s.Weighted)
		t.Max = t.Max.Add(s.Max)
	}
	t.Percent = Percent(t.Raw, t.Max)
	return t
}

// Percent returns part/whole*100, or 0 when whole is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// PointsForTests maps a judge verdict onto the question's point scale.
func PointsForTests(max decimal.Decimal, passed, total int) decimal.Decimal {
	if total <= 0 || passed <= 0 {
		return decimal.Zero
	}
	if passed > total {
		passed = total
	}
	return max.Mul(decimal.NewFromInt(int64(passed))).Div(decimal.NewFromInt(int64(total)))
}

// Round2 is for display only.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
