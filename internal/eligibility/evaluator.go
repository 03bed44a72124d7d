package eligibility

import (
	"sort"
	"strings"
	"time"

	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/tools/timeparser"
)

const (
	LatestPending  = "PENDING"
	LatestApproved = "APPROVED"

	ReasonPending         = "reading pending approval"
	ReasonApprovedMonth   = "reading already approved for this month"
	ReasonLastRejected    = "last reading was rejected, a new one may be submitted"
	ReasonNotVerified     = "reading status could not be verified"
	ReasonSubmittedAwaits = "pending approval"
)

// State is the derived eligibility of a meter for a new reading.
// BlockedReason may be set while IsBlocked is false (informational).
type State struct {
	IsBlocked       bool
	BlockedReason   string
	LatestStatus    string
	StatusValidated bool
}

// Submittable reports whether a new reading may be sent
func (s State) Submittable() bool {
	return s.StatusValidated && !s.IsBlocked
}

// Evaluator decides whether a new reading may be submitted for a meter
type Evaluator struct {
	now      func() time.Time
	location *time.Location
}

// NewEvaluator creates an evaluator matching calendar months in loc
func NewEvaluator(now func() time.Time, loc *time.Location) *Evaluator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{now: now, location: loc}
}

// Location returns the zone used for calendar-month matching
func (e *Evaluator) Location() *time.Location {
	return e.location
}

// Now returns the evaluator's notion of the current time
func (e *Evaluator) Now() time.Time {
	return e.now()
}

// Evaluate applies the one-pending / one-approved-per-month rules to a reading history.
// An approved reading whose date cannot be parsed leaves the state not validated.
func (e *Evaluator) Evaluate(readings []models.MeterReading) State {
	if len(readings) == 0 {
		return State{StatusValidated: true}
	}

	for _, r := range readings {
		if r.Status.AwaitingReview() {
			return State{
				IsBlocked:       true,
				BlockedReason:   ReasonPending,
				LatestStatus:    LatestPending,
				StatusValidated: true,
			}
		}
	}

	now := e.now()
	undated := false
	for _, r := range readings {
		if r.Status != models.StatusApproved {
			continue
		}
		readAt, err := r.ReadAt(e.location)
		if err != nil {
			undated = true
			continue
		}
		if timeparser.SameMonth(readAt, now, e.location) {
			return State{
				IsBlocked:       true,
				BlockedReason:   ReasonApprovedMonth,
				LatestStatus:    LatestApproved,
				StatusValidated: true,
			}
		}
	}

	// an approved reading without a usable date may belong to this month
	if undated {
		return Unverified()
	}

	state := State{StatusValidated: true}
	if latest, ok := e.Latest(readings); ok {
		state.LatestStatus = strings.ToUpper(string(latest.Status))
		if latest.Status == models.StatusRejected {
			state.BlockedReason = ReasonLastRejected
		}
	}
	return state
}

// EvaluateFetch evaluates the outcome of fetching a reading history.
// A fetch error yields a not-validated state, which is not submittable.
func (e *Evaluator) EvaluateFetch(readings []models.MeterReading, err error) State {
	if err != nil {
		return Unverified()
	}
	return e.Evaluate(readings)
}

// Unverified is the state after the reading history could not be obtained
func Unverified() State {
	return State{}
}

// AwaitingApproval is the optimistic state right after a successful submission
func AwaitingApproval() State {
	return State{
		IsBlocked:       true,
		BlockedReason:   ReasonSubmittedAwaits,
		LatestStatus:    LatestPending,
		StatusValidated: true,
	}
}

// Latest returns the most recent reading by date; equal dates go to the highest id.
// Readings with unparseable dates sort before all others.
func (e *Evaluator) Latest(readings []models.MeterReading) (models.MeterReading, bool) {
	var (
		best     models.MeterReading
		bestTime time.Time
		bestOK   bool
		found    bool
	)
	for _, r := range readings {
		t, err := r.ReadAt(e.location)
		ok := err == nil
		if !found {
			best, bestTime, bestOK, found = r, t, ok, true
			continue
		}
		if newer(r, t, ok, best, bestTime, bestOK) {
			best, bestTime, bestOK = r, t, ok
		}
	}
	return best, found
}

// NewestFirst returns a copy of readings ordered like Latest, most recent first
func (e *Evaluator) NewestFirst(readings []models.MeterReading) []models.MeterReading {
	type dated struct {
		r  models.MeterReading
		t  time.Time
		ok bool
	}
	items := make([]dated, len(readings))
	for i, r := range readings {
		t, err := r.ReadAt(e.location)
		items[i] = dated{r: r, t: t, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return newer(items[i].r, items[i].t, items[i].ok, items[j].r, items[j].t, items[j].ok)
	})
	out := make([]models.MeterReading, len(items))
	for i := range items {
		out[i] = items[i].r
	}
	return out
}

func newer(r models.MeterReading, t time.Time, ok bool, best models.MeterReading, bestTime time.Time, bestOK bool) bool {
	switch {
	case ok && !bestOK:
		return true
	case !ok && bestOK:
		return false
	case ok && !t.Equal(bestTime):
		return t.After(bestTime)
	}
	return compareIDs(r.ID, best.ID) > 0
}

// compareIDs orders numeric ids numerically and everything else lexicographically
func compareIDs(a, b models.ID) int {
	as, bs := string(a), string(b)
	if isDigits(as) && isDigits(bs) {
		as, bs = strings.TrimLeft(as, "0"), strings.TrimLeft(bs, "0")
		if len(as) != len(bs) {
			if len(as) > len(bs) {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(as, bs)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
