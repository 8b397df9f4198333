// Package reconcile verifies a delivered order against what was ordered,
// line by line, from manual entries or barcode scans.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/shared"
)

var (
	// ErrLineNotFound is returned for an article that is not part of the session.
	ErrLineNotFound = fmt.Errorf("%w: article not in this delivery", shared.ErrValidation)
	// ErrUnknownCode is returned for a barcode without catalog match.
	ErrUnknownCode = fmt.Errorf("%w: barcode not associated to any article", shared.ErrValidation)
	// ErrDeletedArticle is returned when touching an article removed in this session.
	ErrDeletedArticle = fmt.Errorf("%w: article was removed from this delivery", shared.ErrValidation)
	// ErrAlreadyInOrder is returned when adding an article that already has a line.
	ErrAlreadyInOrder = fmt.Errorf("%w: article already in this delivery", shared.ErrValidation)
	// ErrCannotAlign is returned when a line is verified or nothing was loaded.
	ErrCannotAlign = fmt.Errorf("%w: line cannot be aligned", shared.ErrValidation)
	// ErrFinalizeRefused is returned when the delivery does not match the order.
	ErrFinalizeRefused = fmt.Errorf("%w: delivery does not match the order", shared.ErrValidation)
	// ErrNoUnitWeight is returned when scanning an article with no package weight.
	ErrNoUnitWeight = fmt.Errorf("%w: article has no unit weight", shared.ErrValidation)
	// ErrNoPendingScan is returned when resolving a decision that is not queued.
	ErrNoPendingScan = fmt.Errorf("%w: no pending scan for this code", shared.ErrValidation)
	// ErrUnsavedChanges is returned when closing a session with changes not committed.
	ErrUnsavedChanges = fmt.Errorf("unsaved reconciliation changes: %w", shared.ErrConfirmationRequired)
)

// OverDeliveryError is the decision raised when more than the ordered weight
// is loaded. Confirming it raises the ordered weight to Requested.
type OverDeliveryError struct {
	ArticleID string
	Ordered   decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverDeliveryError) Error() string {
	return fmt.Sprintf("article %s: loading %s kg exceeds the %s kg ordered", e.ArticleID, e.Requested.StringFixed(3), e.Ordered.StringFixed(3))
}

// Line is one article being verified.
type Line struct {
	ArticleID   string
	Description string
	Barcode     string
	UnitWeight  decimal.Decimal
	PricePerKg  decimal.Decimal
	Ordered     decimal.Decimal
	Loaded      decimal.Decimal
	// Added marks lines created during reconciliation for articles missing
	// from the order.
	Added bool
}

// Verified reports whether the loaded weight matches the ordered one.
func (l Line) Verified() bool { return l.Loaded.Equal(l.Ordered) }

// LoadedValue is the value of the loaded weight, rounded to three decimals
// before it enters any total.
func (l Line) LoadedValue() decimal.Decimal {
	return l.Loaded.Mul(l.PricePerKg).Round(shared.WeightPlaces)
}

// OrderedValue is the value of the ordered weight, rounded like LoadedValue.
func (l Line) OrderedValue() decimal.Decimal {
	return l.Ordered.Mul(l.PricePerKg).Round(shared.WeightPlaces)
}

// Totals are the running sums over the live lines.
type Totals struct {
	Loaded       decimal.Decimal
	Ordered      decimal.Decimal
	LoadedValue  decimal.Decimal
	OrderedValue decimal.Decimal
}

func (t *Totals) add(l *Line) {
	t.Loaded = t.Loaded.Add(l.Loaded)
	t.Ordered = t.Ordered.Add(l.Ordered)
	t.LoadedValue = t.LoadedValue.Add(l.LoadedValue())
	t.OrderedValue = t.OrderedValue.Add(l.OrderedValue())
}

func (t *Totals) sub(l *Line) {
	t.Loaded = t.Loaded.Sub(l.Loaded)
	t.Ordered = t.Ordered.Sub(l.Ordered)
	t.LoadedValue = t.LoadedValue.Sub(l.LoadedValue())
	t.OrderedValue = t.OrderedValue.Sub(l.OrderedValue())
}

// Session is the in-memory state of one reconciliation. It is not safe for
// concurrent use; Live serializes access.
type Session struct {
	orderID   int64
	lines     map[string]*Line
	byCode    map[string]string
	available catalog.BarcodeIndex
	deleted   []string
	removed   map[string]struct{}
	// barcodes of removed articles, no longer resolvable
	removedCodes map[string]struct{}
	totals       Totals
	dirty        bool
}

// NewSession builds a session from its lines, the articles already removed
// and the catalog. Catalog articles with a barcode that are neither lines nor
// removed can be added by scanning them.
func NewSession(orderID int64, lines []Line, deleted []string, articles []catalog.Article) *Session {
	s := &Session{
		orderID:      orderID,
		lines:        make(map[string]*Line, len(lines)),
		byCode:       make(map[string]string, len(lines)),
		removed:      make(map[string]struct{}, len(deleted)),
		removedCodes: make(map[string]struct{}),
	}
	for i := range lines {
		l := lines[i]
		l.Ordered = l.Ordered.Round(shared.WeightPlaces)
		l.Loaded = l.Loaded.Round(shared.WeightPlaces)
		s.lines[l.ArticleID] = &l
		if l.Barcode != "" {
			s.byCode[l.Barcode] = l.ArticleID
		}
		s.totals.add(&l)
	}
	for _, id := range deleted {
		if _, ok := s.removed[id]; ok {
			continue
		}
		s.removed[id] = struct{}{}
		s.deleted = append(s.deleted, id)
	}
	var rest []catalog.Article
	for _, a := range articles {
		if _, ok := s.lines[a.ID]; ok {
			continue
		}
		if _, ok := s.removed[a.ID]; ok {
			if a.Barcode != "" {
				s.removedCodes[a.Barcode] = struct{}{}
			}
			continue
		}
		rest = append(rest, a)
	}
	s.available = catalog.NewBarcodeIndex(rest)
	return s
}

// OrderID is the order being reconciled.
func (s *Session) OrderID() int64 { return s.orderID }

// Totals returns the running totals.
func (s *Session) Totals() Totals { return s.totals }

// Dirty reports whether the session changed since it was opened or committed.
func (s *Session) Dirty() bool { return s.dirty }

// MarkClean records that the current state is persisted.
func (s *Session) MarkClean() { s.dirty = false }

// Deleted lists the articles removed in this session, in removal order.
func (s *Session) Deleted() []string { return append([]string(nil), s.deleted...) }

// Lines returns a copy of the live lines sorted by description.
func (s *Session) Lines() []Line {
	out := make([]Line, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Description == out[j].Description {
			return out[i].ArticleID < out[j].ArticleID
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// Line returns one live line.
func (s *Session) Line(articleID string) (Line, bool) {
	l, ok := s.lines[articleID]
	if !ok {
		return Line{}, false
	}
	return *l, true
}

func (s *Session) line(articleID string) (*Line, error) {
	if _, ok := s.removed[articleID]; ok {
		return nil, ErrDeletedArticle
	}
	l, ok := s.lines[articleID]
	if !ok {
		return nil, ErrLineNotFound
	}
	return l, nil
}

// mutate applies fn to l keeping the totals in step.
func (s *Session) mutate(l *Line, fn func(*Line)) {
	s.totals.sub(l)
	fn(l)
	s.totals.add(l)
	s.dirty = true
}

// SetLoaded records the loaded weight of an article. A quantity above the
// ordered weight returns *OverDeliveryError unless confirmOver is set, in
// which case the ordered weight is raised to match.
func (s *Session) SetLoaded(articleID string, qty decimal.Decimal, confirmOver bool) error {
	l, err := s.line(articleID)
	if err != nil {
		return err
	}
	if qty.IsNegative() {
		return shared.Invalid("negative loaded weight for %s", articleID)
	}
	qty = qty.Round(shared.WeightPlaces)
	if qty.GreaterThan(l.Ordered) {
		if !confirmOver {
			return &OverDeliveryError{ArticleID: articleID, Ordered: l.Ordered, Requested: qty}
		}
		s.mutate(l, func(l *Line) { l.Ordered, l.Loaded = qty, qty })
		return nil
	}
	s.mutate(l, func(l *Line) { l.Loaded = qty })
	return nil
}

// AddArticle creates a verified line of one unit for a cataloged article
// that is not part of the order.
func (s *Session) AddArticle(code string) error {
	if id, ok := s.byCode[code]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInOrder, id)
	}
	a, ok := s.available.Lookup(code)
	if !ok {
		if s.isRemovedCode(code) {
			return ErrDeletedArticle
		}
		return ErrUnknownCode
	}
	unit := shared.Kg(a.UnitWeight)
	if !unit.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNoUnitWeight, a.ID)
	}
	l := &Line{
		ArticleID:   a.ID,
		Description: a.Description,
		Barcode:     a.Barcode,
		UnitWeight:  unit,
		PricePerKg:  decimal.NewFromFloat(a.PricePerKg),
		Ordered:     unit,
		Loaded:      unit,
		Added:       true,
	}
	delete(s.available, code)
	s.lines[a.ID] = l
	s.byCode[code] = a.ID
	s.totals.add(l)
	s.dirty = true
	return nil
}

// Delete removes an article from the delivery. It cannot be undone within
// the session.
func (s *Session) Delete(articleID string) error {
	l, err := s.line(articleID)
	if err != nil {
		return err
	}
	s.totals.sub(l)
	delete(s.lines, articleID)
	if l.Barcode != "" {
		delete(s.byCode, l.Barcode)
		s.removedCodes[l.Barcode] = struct{}{}
	}
	s.removed[articleID] = struct{}{}
	s.deleted = append(s.deleted, articleID)
	s.dirty = true
	return nil
}

// CanAlign reports whether Align is offered for the article.
func (s *Session) CanAlign(articleID string) bool {
	l, ok := s.lines[articleID]
	return ok && !l.Verified() && l.Loaded.IsPositive()
}

// Align makes the loaded weight the ordered one.
func (s *Session) Align(articleID string) error {
	l, err := s.line(articleID)
	if err != nil {
		return err
	}
	if l.Verified() || !l.Loaded.IsPositive() {
		return fmt.Errorf("%w: %s", ErrCannotAlign, articleID)
	}
	s.mutate(l, func(l *Line) { l.Ordered = l.Loaded })
	return nil
}

// AllVerified reports whether every live line is verified.
func (s *Session) AllVerified() bool {
	for _, l := range s.lines {
		if !l.Verified() {
			return false
		}
	}
	return true
}

// CanFinalize reports whether the delivery matches the order: every line
// verified and both total pairs equal at gram and cent precision.
func (s *Session) CanFinalize() bool {
	return s.AllVerified() &&
		shared.SameKg(s.totals.Loaded, s.totals.Ordered) &&
		shared.SameEuro(s.totals.LoadedValue, s.totals.OrderedValue)
}

func (s *Session) isRemovedCode(code string) bool {
	_, ok := s.removedCodes[code]
	return ok
}
