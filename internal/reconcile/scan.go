package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sisco70/tabacchi/internal/shared"
)

// EffectKind is the outcome of a scanned code.
type EffectKind string

const (
	// EffectLoad adds one package to a line still within its ordered weight.
	EffectLoad EffectKind = "LOAD"
	// EffectOverDelivery adds one package beyond the ordered weight and
	// needs confirmation.
	EffectOverDelivery EffectKind = "OVER_DELIVERY"
	// EffectAddArticle adds a cataloged article missing from the order and
	// needs confirmation.
	EffectAddArticle EffectKind = "ADD_ARTICLE"
	// EffectDeletedArticle rejects a code of an article removed in this session.
	EffectDeletedArticle EffectKind = "DELETED_ARTICLE"
	// EffectUnknownCode rejects a code with no catalog match.
	EffectUnknownCode EffectKind = "UNKNOWN_CODE"
	// EffectNoUnitWeight rejects a code of an article without a package
	// weight, since scanning it would load nothing.
	EffectNoUnitWeight EffectKind = "NO_UNIT_WEIGHT"
)

// Effect describes what a scan would do to the session.
type Effect struct {
	Kind        EffectKind
	Code        string
	ArticleID   string
	Description string
	// Loaded is the loaded weight after the effect is applied.
	Loaded decimal.Decimal
	// Ordered is the ordered weight after the effect is applied.
	Ordered decimal.Decimal
}

// NeedsConfirmation reports whether the operator must accept the effect.
func (e Effect) NeedsConfirmation() bool {
	return e.Kind == EffectOverDelivery || e.Kind == EffectAddArticle
}

// Rejected reports whether the effect can never be applied.
func (e Effect) Rejected() bool {
	return e.Kind == EffectDeletedArticle || e.Kind == EffectUnknownCode || e.Kind == EffectNoUnitWeight
}

// HandleScan computes the effect of scanning code without changing the session.
// Each scan of a known article stands for one more minimum package.
func (s *Session) HandleScan(code string) Effect {
	if id, ok := s.byCode[code]; ok {
		l := s.lines[id]
		if !l.UnitWeight.IsPositive() {
			return Effect{Kind: EffectNoUnitWeight, Code: code, ArticleID: id, Description: l.Description, Loaded: l.Loaded, Ordered: l.Ordered}
		}
		next := l.Loaded.Add(l.UnitWeight).Round(shared.WeightPlaces)
		e := Effect{Kind: EffectLoad, Code: code, ArticleID: id, Description: l.Description, Loaded: next, Ordered: l.Ordered}
		if next.GreaterThan(l.Ordered) {
			e.Kind = EffectOverDelivery
			e.Ordered = next
		}
		return e
	}
	if a, ok := s.available.Lookup(code); ok {
		unit := shared.Kg(a.UnitWeight)
		if !unit.IsPositive() {
			return Effect{Kind: EffectNoUnitWeight, Code: code, ArticleID: a.ID, Description: a.Description}
		}
		return Effect{Kind: EffectAddArticle, Code: code, ArticleID: a.ID, Description: a.Description, Loaded: unit, Ordered: unit}
	}
	if s.isRemovedCode(code) {
		return Effect{Kind: EffectDeletedArticle, Code: code}
	}
	return Effect{Kind: EffectUnknownCode, Code: code}
}

// Apply carries out an effect. The increment is recomputed from the current
// line so that effects confirmed late do not overwrite scans applied
// meanwhile. A LOAD that has become an over-delivery returns
// *OverDeliveryError.
func (s *Session) Apply(e Effect) error {
	switch e.Kind {
	case EffectLoad, EffectOverDelivery:
		l, err := s.line(e.ArticleID)
		if err != nil {
			return err
		}
		return s.SetLoaded(e.ArticleID, l.Loaded.Add(l.UnitWeight), e.Kind == EffectOverDelivery)
	case EffectAddArticle:
		return s.AddArticle(e.Code)
	case EffectDeletedArticle:
		return ErrDeletedArticle
	case EffectNoUnitWeight:
		return fmt.Errorf("%w: %s", ErrNoUnitWeight, e.ArticleID)
	default:
		return ErrUnknownCode
	}
}
