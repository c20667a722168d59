package query_engine

import "fmt"

// ConstraintKind selects how the final match count is judged.
type ConstraintKind int

const (
	KindAtLeastOnce ConstraintKind = iota
	KindExactlyN
	KindNever
)

// Constraint is the pass/fail rule applied to a pipeline's final match count.
type Constraint struct {
	Kind ConstraintKind
	N    int
}

// AtLeastOnce passes when there is at least one match.
func AtLeastOnce() Constraint { return Constraint{Kind: KindAtLeastOnce} }

// ExactlyN passes when there are exactly n matches.
func ExactlyN(n int) Constraint { return Constraint{Kind: KindExactlyN, N: n} }

// Never passes when there are no matches.
func Never() Constraint { return Constraint{Kind: KindNever} }

// Check evaluates the constraint against a match count.
func (c Constraint) Check(count int) bool {
	switch c.Kind {
	case KindExactlyN:
		return count == c.N
	case KindNever:
		return count == 0
	default:
		return count >= 1
	}
}

func (c Constraint) String() string {
	switch c.Kind {
	case KindExactlyN:
		return fmt.Sprintf("exactly %d", c.N)
	case KindNever:
		return "never"
	default:
		return "at least once"
	}
}

// Explain describes the outcome of checking count in words a student can act on.
func (c Constraint) Explain(count int) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 match"
		}
		return fmt.Sprintf("%d matches", n)
	}
	switch c.Kind {
	case KindExactlyN:
		if count == c.N {
			return fmt.Sprintf("found exactly %s as required", plural(count))
		}
		return fmt.Sprintf("expected exactly %s but found %d", plural(c.N), count)
	case KindNever:
		if count == 0 {
			return "found no matches, as required"
		}
		return fmt.Sprintf("expected no matches but found %d", count)
	default:
		if count >= 1 {
			return fmt.Sprintf("found %s (at least one required)", plural(count))
		}
		return "expected at least one match but found none"
	}
}

func (c Constraint) validate() error {
	if c.Kind == KindExactlyN && c.N < 0 {
		return fmt.Errorf("exactly-n constraint needs a non-negative count, got %d", c.N)
	}
	if c.Kind < KindAtLeastOnce || c.Kind > KindNever {
		return fmt.Errorf("unknown constraint kind %d", c.Kind)
	}
	return nil
}
