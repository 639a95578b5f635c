package report

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/normalize"
	"github.com/modelpulse/tracker-cli/internal/store"
)

// Engine computes weekly reports. It is stateless: every result is a pure
// function of store contents and parameters.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
}

func NewEngine(st store.Store, c *classify.Classifier) *Engine {
	return &Engine{store: st, classifier: c}
}

// Params selects the report window.
type Params struct {
	Family   string
	Current  model.Day
	Previous model.Day // empty: most recent Friday before Current
	TopTotal int       // family leaderboard size by total, default 3
	TopDelta int       // family leaderboard size by delta, default 5
}

func (p *Params) defaults(rules classify.Rules) {
	if p.Family == "" {
		p.Family = rules.DefaultFamily
	}
	if p.Previous == "" {
		p.Previous = LastFriday(p.Current.Time())
	}
	if p.TopTotal <= 0 {
		p.TopTotal = 3
	}
	if p.TopDelta <= 0 {
		p.TopDelta = 5
	}
}

// Weekly builds the comparison report for one family between two days.
// Returns ErrNoData when either day has no family observations; a store
// failure is returned as-is and is always distinguishable from ErrNoData.
func (e *Engine) Weekly(ctx context.Context, p Params) (*Report, error) {
	rules := e.classifier.Rules()
	p.defaults(rules)

	exactCur, err := e.familySnapshot(ctx, p.Current, p.Family)
	if err != nil {
		return nil, err
	}
	exactPrev, err := e.familySnapshot(ctx, p.Previous, p.Family)
	if err != nil {
		return nil, err
	}
	if len(exactCur) == 0 || len(exactPrev) == 0 {
		return nil, eris.Wrapf(ErrNoData, "family %s, %s vs %s", p.Family, p.Current, p.Previous)
	}

	history, err := e.store.ResolveHistory(ctx, p.Current, store.Filter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: read history")
	}
	history = e.filterFamily(normalize.Snapshots(history), p.Family)

	r := &Report{
		Family:   p.Family,
		Current:  p.Current,
		Previous: p.Previous,
	}

	e.totals(r, exactCur, exactPrev, history, p)
	e.platformSummaries(r, exactCur, exactPrev, rules)
	e.leaderboards(r, exactCur, exactPrev, rules, p)
	e.newModels(r, exactCur, exactPrev, rules)
	e.removedModels(r, exactCur, history, p.Current)
	e.decreaseWarnings(r, history)

	return r, nil
}

// AsOf returns the family's cumulative view on day: per identity, the most
// recent valid count on or before day, carried forward to day. Identities
// the platform stopped listing stay in the view with their last-seen count.
func (e *Engine) AsOf(ctx context.Context, day model.Day, family string) ([]model.Snapshot, error) {
	if family == "" {
		family = e.classifier.Rules().DefaultFamily
	}
	snaps, err := e.store.ResolveAsOf(ctx, day, store.Filter{})
	if err != nil {
		return nil, eris.Wrapf(err, "report: read as of %s", day)
	}
	return dedupeIdentities(e.filterFamily(normalize.Snapshots(snaps), family)), nil
}

// familySnapshot resolves one exact day, normalizes identities, restricts to
// the family and collapses identities that only collide after normalization.
func (e *Engine) familySnapshot(ctx context.Context, day model.Day, family string) ([]model.Snapshot, error) {
	snaps, err := e.store.ResolveExact(ctx, day, store.Filter{})
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", day)
	}
	return dedupeIdentities(e.filterFamily(normalize.Snapshots(snaps), family)), nil
}

func (e *Engine) filterFamily(snaps []model.Snapshot, family string) []model.Snapshot {
	out := snaps[:0:0]
	for _, s := range snaps {
		if e.classifier.InFamily(s.Observation, family) {
			out = append(out, s)
		}
	}
	return out
}

// dedupeIdentities keeps one row per identity after normalization, using
// the same cascade as store resolution. Normalization can merge identities
// the store saw as distinct, so resolution alone is not enough.
func dedupeIdentities(snaps []model.Snapshot) []model.Snapshot {
	seen := make(map[model.Identity]int, len(snaps))
	out := make([]model.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		id := s.Identity()
		i, ok := seen[id]
		if !ok {
			seen[id] = len(out)
			out = append(out, s)
			continue
		}
		if betterRow(s.Observation, out[i].Observation) {
			out[i] = s
		}
	}
	return out
}

func betterRow(a, b model.Observation) bool {
	if ap, bp := a.HasParent(), b.HasParent(); ap != bp {
		return ap
	}
	if ar, br := a.SourcePriority.Rank(), b.SourcePriority.Rank(); ar != br {
		return ar > br
	}
	if ac, bc := a.Count(), b.Count(); ac != bc {
		return ac > bc
	}
	return a.RowID > b.RowID
}

func (e *Engine) totals(r *Report, exactCur, exactPrev, history []model.Snapshot, p Params) {
	for _, s := range exactCur {
		if e.classifier.Official(s.Publisher) {
			r.OfficialCurrent += s.Count()
		}
	}
	for _, s := range exactPrev {
		if e.classifier.Official(s.Publisher) {
			r.OfficialPrevious += s.Count()
		}
	}
	r.OfficialGrowth = r.OfficialCurrent - r.OfficialPrevious

	// Derivative totals never come from the exact-date snapshot: a platform
	// skipped on the report day would show as spurious negative growth. Each
	// identity contributes its best-ever count up to the cutoff instead.
	r.DerivativeCurrent = e.historicalMaxTotal(history, p.Current)
	r.DerivativePrevious = e.historicalMaxTotal(history, p.Previous)
	r.DerivativeGrowth = r.DerivativeCurrent - r.DerivativePrevious
}

func (e *Engine) historicalMaxTotal(history []model.Snapshot, cutoff model.Day) int64 {
	best := make(map[model.Identity]int64)
	for _, s := range history {
		if s.Day.Before(cutoff) || s.Day == cutoff {
			if e.classifier.Official(s.Publisher) {
				continue
			}
			if c := s.Count(); c > best[s.Identity()] {
				best[s.Identity()] = c
			}
		}
	}
	var total int64
	for _, c := range best {
		total += c
	}
	return total
}

func (e *Engine) platformSummaries(r *Report, exactCur, exactPrev []model.Snapshot, rules classify.Rules) {
	cur := make(map[string]*PlatformSummary)
	for _, pr := range rules.Platforms {
		s := &PlatformSummary{Platform: pr.Key, DisplayName: pr.DisplayName}
		cur[pr.Key] = s
		r.Platforms = append(r.Platforms, PlatformSummary{})
	}
	for _, s := range exactCur {
		if ps, ok := cur[s.Platform]; ok {
			ps.Current += s.Count()
			ps.Models++
		}
	}
	for _, s := range exactPrev {
		if ps, ok := cur[s.Platform]; ok {
			ps.Previous += s.Count()
		}
	}
	for i, pr := range rules.Platforms {
		ps := cur[pr.Key]
		ps.Delta = ps.Current - ps.Previous
		r.Platforms[i] = *ps
	}
}

func (e *Engine) leaderboards(r *Report, exactCur, exactPrev []model.Snapshot, rules classify.Rules, p Params) {
	pivot := NewPivot()
	for _, s := range exactCur {
		pivot.Row(s.Identity()).Current = s.Count()
	}
	for _, s := range exactPrev {
		pivot.Row(s.Identity()).Previous = s.Count()
	}

	official := pivot.Filter(func(row PivotRow) bool {
		return e.classifier.Official(row.Identity.Publisher)
	})
	derivative := pivot.Filter(func(row PivotRow) bool {
		return !e.classifier.Official(row.Identity.Publisher)
	})

	r.TopOfficialByTotal = entries(official.TopBy(p.TopTotal, PivotRow.current))
	r.TopOfficialByDelta = entries(official.TopBy(p.TopDelta, PivotRow.Delta))

	for _, pr := range rules.Platforms {
		onPlatform := func(row PivotRow) bool { return row.Identity.Platform == pr.Key }
		off := official.Filter(onPlatform)
		if off.Len() == 0 && !pr.TracksDerivatives {
			continue
		}
		leaders := PlatformLeaders{Platform: pr.Key}
		if off.Len() > 0 {
			leaders.TopOfficialByTotal = entries(off.TopBy(1, PivotRow.current))
			leaders.TopOfficialByDelta = entries(off.TopBy(1, PivotRow.Delta))
		}
		if pr.TracksDerivatives {
			der := derivative.Filter(onPlatform)
			if der.Len() > 0 {
				leaders.TopDerivativeByTotal = entries(der.TopBy(1, PivotRow.current))
				leaders.TopDerivativeByDelta = entries(der.TopBy(1, PivotRow.Delta))
			}
		}
		if leaders.TopOfficialByTotal != nil || leaders.TopDerivativeByTotal != nil {
			r.PlatformLeaders = append(r.PlatformLeaders, leaders)
		}
	}
}

func (r PivotRow) current() int64 { return r.Current }

func entries(rows []PivotRow) []Entry {
	out := make([]Entry, len(rows))
	for i, row := range rows {
		out[i] = Entry{
			Identity: row.Identity,
			Current:  row.Current,
			Previous: row.Previous,
			Delta:    row.Delta(),
		}
	}
	return out
}

// newModels diffs (publisher, model_name) keys on the reference platform
// only; no other platform has reliable cross-session identity.
func (e *Engine) newModels(r *Report, exactCur, exactPrev []model.Snapshot, rules classify.Rules) {
	prev := make(map[model.Key]struct{})
	for _, s := range exactPrev {
		if s.Platform == rules.ReferencePlatform {
			prev[s.Identity().Key()] = struct{}{}
		}
	}

	r.NewByKind = make(map[model.DerivationKind]int)
	for _, s := range exactCur {
		if s.Platform != rules.ReferencePlatform {
			continue
		}
		if _, ok := prev[s.Identity().Key()]; ok {
			continue
		}
		official := e.classifier.Official(s.Publisher)
		nm := NewModel{
			Publisher: s.Publisher,
			ModelName: s.ModelName,
			Kind:      e.classifier.Kind(s.Observation),
			Official:  official,
			Count:     s.Count(),
		}
		r.NewModels = append(r.NewModels, nm)
		r.NewByKind[nm.Kind]++
		if !official {
			r.NewDerivativeCount++
		}
	}
	if len(r.NewByKind) == 0 {
		r.NewByKind = nil
	}
}

// removedModels flags identities with history on or before the report day
// but no row on the day itself, keeping their last real observation.
func (e *Engine) removedModels(r *Report, exactCur, history []model.Snapshot, current model.Day) {
	present := make(map[model.Identity]struct{}, len(exactCur))
	for _, s := range exactCur {
		present[s.Identity()] = struct{}{}
	}

	lastSeen := make(map[model.Identity]model.Snapshot)
	for _, s := range history {
		if model.IsMissing(s.DownloadCount) {
			continue
		}
		prev, ok := lastSeen[s.Identity()]
		if !ok || prev.Day.Before(s.Day) {
			lastSeen[s.Identity()] = s
		}
	}

	for id, s := range lastSeen {
		if _, ok := present[id]; ok {
			continue
		}
		r.Removed = append(r.Removed, RemovedModel{
			Identity:  id,
			LastSeen:  s.Day,
			LastCount: s.Count(),
		})
	}
	sort.Slice(r.Removed, func(i, j int) bool {
		a, b := r.Removed[i].Identity, r.Removed[j].Identity
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.Publisher != b.Publisher {
			return a.Publisher < b.Publisher
		}
		return a.ModelName < b.ModelName
	})
}

// decreaseWarnings scans each identity's raw per-day series for drops.
// History arrives ordered by day, so consecutive rows per identity compare
// adjacent observed days.
func (e *Engine) decreaseWarnings(r *Report, history []model.Snapshot) {
	type series struct {
		last    model.Snapshot
		started bool
	}
	byID := make(map[model.Identity]*series)

	for _, s := range history {
		id := s.Identity()
		sr, ok := byID[id]
		if !ok {
			sr = &series{}
			byID[id] = sr
		}
		if sr.started && sr.last.Day == s.Day {
			// normalization can fold two store identities into one; keep
			// the better same-day row instead of comparing them
			if betterRow(s.Observation, sr.last.Observation) {
				sr.last = s
			}
			continue
		}
		if sr.started {
			earlier, later := sr.last.Count(), s.Count()
			if later < earlier {
				r.Warnings = append(r.Warnings, DecreaseWarning{
					Identity:    id,
					EarlierDay:  sr.last.Day,
					LaterDay:    s.Day,
					EarlierSeen: earlier,
					LaterSeen:   later,
					Delta:       later - earlier,
				})
			}
		}
		sr.last = s
		sr.started = true
	}
}
