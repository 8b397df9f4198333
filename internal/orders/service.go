package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/shared"
)

// Repository describes the order store used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	Lines(ctx context.Context, id int64) ([]Line, error)
	SupplementalLines(ctx context.Context, id int64) ([]SupplementalLine, error)
	List(ctx context.Context, since time.Time) ([]Summary, error)
	Latest(ctx context.Context) (Order, bool, error)
	CountNotReceived(ctx context.Context) (int, error)
	FindByDelivery(ctx context.Context, delivery time.Time) (Order, bool, error)
	FindPreceding(ctx context.Context, placedAt time.Time) (Order, bool, error)
	FindFollowing(ctx context.Context, placedAt time.Time) (Order, bool, error)
}

// TxRepository exposes the writes that run inside a transaction.
type TxRepository interface {
	Get(ctx context.Context, id int64) (Order, error)
	Create(ctx context.Context, o Order) (int64, error)
	UpdateState(ctx context.Context, id int64, state State) error
	UpdateSchedule(ctx context.Context, id int64, placedAt, delivery time.Time) error
	SetResumeIndex(ctx context.Context, id int64, index int) error
	UpsertLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, id int64) error
	SetSupplemental(ctx context.Context, id int64, kind SupplementalKind, date *time.Time) error
	ReplaceSupplementalLines(ctx context.Context, id int64, lines []SupplementalLine) error
	Delete(ctx context.Context, id int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the order lifecycle.
type Service struct {
	repo    Repository
	catalog catalog.Reader
	policy  *DeadlinePolicy
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
	evicter SessionEvicter
}

// SessionEvicter drops in-memory state kept for an order elsewhere, such as
// an open reconciliation session.
type SessionEvicter interface {
	Remove(orderID int64)
}

// NewService constructs the order service.
func NewService(repo Repository, cat catalog.Reader, policy *DeadlinePolicy, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, policy: policy, audit: audit, logger: logger, now: time.Now}
}

// WithEvicter registers the evicter notified after an order is deleted.
func (s *Service) WithEvicter(e SessionEvicter) *Service {
	s.evicter = e
	return s
}

// InLocation makes deadlines and placement times follow the shop's clock.
func (s *Service) InLocation(loc *time.Location) *Service {
	if loc != nil {
		s.now = func() time.Time { return time.Now().In(loc) }
	}
	return s
}

// Get returns an order header.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// Lines returns the order lines.
func (s *Service) Lines(ctx context.Context, id int64) ([]Line, error) {
	return s.repo.Lines(ctx, id)
}

// SupplementalLines returns the lines of the attached supplemental order.
func (s *Service) SupplementalLines(ctx context.Context, id int64) ([]SupplementalLine, error) {
	return s.repo.SupplementalLines(ctx, id)
}

// List returns order summaries placed after since, newest first.
func (s *Service) List(ctx context.Context, since time.Time) ([]Summary, error) {
	return s.repo.List(ctx, since)
}

// Create opens a new IN_PROGRESS order placed now.
func (s *Service) Create(ctx context.Context) (Order, error) {
	now := s.now()
	articles, err := s.catalog.ListInStock(ctx)
	if err != nil {
		return Order{}, err
	}
	if len(articles) == 0 {
		return Order{}, ErrEmptyCatalog
	}
	open, err := s.repo.CountNotReceived(ctx)
	if err != nil {
		return Order{}, err
	}
	if open > 0 {
		return Order{}, ErrOpenOrderExists
	}
	latest, ok, err := s.repo.Latest(ctx)
	if err != nil {
		return Order{}, err
	}
	if ok && latest.PlacedAt.After(now) {
		return Order{}, ErrNotLatest
	}
	slot, err := s.policy.Compute(ctx, now)
	if err != nil {
		return Order{}, err
	}
	if err := s.ensureDeliveryFree(ctx, slot.Delivery, 0); err != nil {
		return Order{}, err
	}

	order := Order{PlacedAt: now, Delivery: slot.Delivery, State: StateInProgress, Supplemental: SupplementalNone}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "ORDER_CREATE", order.ID, map[string]any{"delivery": order.Delivery.Format(time.DateOnly)})
	return order, nil
}

// SheetRow is one article of the entry sheet of an order.
type SheetRow struct {
	Article   catalog.Article
	Line      Line
	HasLine   bool
	Previous  Line
	Suggested float64
}

// Sheet lists every in-stock article with its line in the order, the line of
// the preceding order and, while the order is editable, the suggested weight.
func (s *Service) Sheet(ctx context.Context, id int64) (Order, []SheetRow, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	articles, err := s.catalog.ListInStock(ctx)
	if err != nil {
		return Order{}, nil, err
	}
	lines, err := s.repo.Lines(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	prevLines, err := s.precedingLines(ctx, order.PlacedAt)
	if err != nil {
		return Order{}, nil, err
	}
	current := indexLines(lines)
	previous := indexLines(prevLines)
	rows := make([]SheetRow, 0, len(articles))
	for _, a := range articles {
		line, ok := current[a.ID]
		row := SheetRow{Article: a, Line: line, HasLine: ok, Previous: previous[a.ID]}
		if order.State.Mode() == ModeEdit {
			row.Suggested = SuggestOrder(a.MinLevel, line.Stock)
		}
		rows = append(rows, row)
	}
	return order, rows, nil
}

// LineInput is an edit of one order line.
type LineInput struct {
	OrderID   int64
	ArticleID string
	Stock     float64
	Ordered   float64
}

// RecordLine stores the stock count and ordered weight of an article.
// Orders past IN_PROGRESS only accept stock changes.
func (s *Service) RecordLine(ctx context.Context, in LineInput) (Line, error) {
	if in.Stock < 0 || in.Ordered < 0 {
		return Line{}, shared.Invalid("negative quantity for %s", in.ArticleID)
	}
	order, err := s.repo.Get(ctx, in.OrderID)
	if err != nil {
		return Line{}, err
	}
	article, err := s.catalog.Get(ctx, in.ArticleID)
	if err != nil {
		return Line{}, err
	}
	lines, err := s.repo.Lines(ctx, in.OrderID)
	if err != nil {
		return Line{}, err
	}
	existing, hasLine := indexLines(lines)[in.ArticleID]

	line := Line{
		OrderID:     in.OrderID,
		ArticleID:   article.ID,
		Description: article.Description,
		Price:       article.PricePerKg,
		Stock:       shared.RoundKg(in.Stock),
		Ordered:     shared.RoundKg(in.Ordered),
	}
	if hasLine {
		line.Description = existing.Description
		line.Price = existing.Price
	}
	if order.State.Mode() == ModeReview {
		if line.Ordered != existing.Ordered {
			return Line{}, fmt.Errorf("%w: ordered weight is locked once the order is %s", ErrInvalidState, order.State)
		}
	}

	prevLines, err := s.precedingLines(ctx, order.PlacedAt)
	if err != nil {
		return Line{}, err
	}
	if prev, ok := indexLines(prevLines)[in.ArticleID]; ok {
		line.Consumption = shared.RoundKg(prev.Level() - line.Stock)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertLine(ctx, line)
	})
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

// SetResumeIndex remembers where the operator left the entry sheet.
func (s *Service) SetResumeIndex(ctx context.Context, id int64, index int) error {
	if index < 0 {
		return shared.Invalid("negative resume index")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		return tx.SetResumeIndex(ctx, id, index)
	})
}

// Estimate proposes stock levels for an order placed at placedAt given the
// weight already known to be incoming per article.
func (s *Service) Estimate(ctx context.Context, placedAt time.Time, incoming map[string]float64) (map[string]float64, error) {
	articles, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	in := EstimateInput{
		MinLevels: make(map[string]float64, len(articles)),
		Incoming:  incoming,
	}
	for _, a := range articles {
		in.Articles = append(in.Articles, a.ID)
		in.MinLevels[a.ID] = a.MinLevel
	}
	for id := range incoming {
		if _, ok := in.MinLevels[id]; !ok {
			in.Articles = append(in.Articles, id)
		}
	}
	if prev, ok, err := s.repo.FindPreceding(ctx, placedAt); err != nil {
		return nil, err
	} else if ok {
		lines, err := s.repo.Lines(ctx, prev.ID)
		if err != nil {
			return nil, err
		}
		in.Previous = levels(lines)
	}
	if next, ok, err := s.repo.FindFollowing(ctx, placedAt); err != nil {
		return nil, err
	} else if ok {
		lines, err := s.repo.Lines(ctx, next.ID)
		if err != nil {
			return nil, err
		}
		in.Next = levels(lines)
	}
	return Estimate(in), nil
}

// DeadlineError reports that the send deadline of an order has passed. The
// caller decides whether to move the order to Proposed.
type DeadlineError struct {
	OrderID  int64
	Deadline time.Time
	Proposed Slot
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("order %d: send deadline %s has passed, next slot is %s for delivery %s",
		e.OrderID, e.Deadline.Format(time.DateTime), e.Proposed.Deadline.Format(time.DateTime), e.Proposed.Delivery.Format(time.DateOnly))
}

// SendOptions resolves the deadline decision.
type SendOptions struct {
	ShiftIfLate bool
}

// Send moves an IN_PROGRESS order to SENT. When the send deadline already
// passed the order is rescheduled to the next slot if opts allow it,
// otherwise a *DeadlineError is returned and nothing changes.
func (s *Service) Send(ctx context.Context, id int64, opts SendOptions) (Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(order.State, StateSent) {
		return Order{}, fmt.Errorf("%w: cannot send order in state %s", ErrInvalidState, order.State)
	}
	now := s.now()
	slot, err := s.policy.Compute(ctx, order.PlacedAt)
	if err != nil {
		return Order{}, err
	}
	shift := false
	var next Slot
	if slot.Deadline.Before(now) {
		next, err = s.policy.Compute(ctx, now)
		if err != nil {
			return Order{}, err
		}
		if !opts.ShiftIfLate {
			return Order{}, &DeadlineError{OrderID: id, Deadline: slot.Deadline, Proposed: next}
		}
		if err := s.ensureDeliveryFree(ctx, next.Delivery, id); err != nil {
			return Order{}, err
		}
		shift = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.State != order.State {
			return ErrInvalidState
		}
		if shift {
			if err := tx.UpdateSchedule(ctx, id, now, next.Delivery); err != nil {
				return err
			}
			order.PlacedAt, order.Delivery = now, next.Delivery
		}
		return tx.UpdateState(ctx, id, StateSent)
	})
	if err != nil {
		return Order{}, err
	}
	order.State = StateSent
	meta := map[string]any{"delivery": order.Delivery.Format(time.DateOnly)}
	if shift {
		meta["rescheduled"] = true
	}
	s.recordAudit(ctx, "ORDER_SEND", id, meta)
	return order, nil
}

// SubmissionRow is a row of the supplier's delivery schedule as reported by
// the submission collaborator after an order was uploaded.
type SubmissionRow struct {
	Delivery time.Time
	Status   string
}

// ConfirmedStatuses are the supplier statuses that prove an order was accepted.
var ConfirmedStatuses = []string{"Modificabile", "In lavorazione", "Evaso"}

// IsConfirmedStatus reports whether status proves the order was accepted.
func IsConfirmedStatus(status string) bool {
	for _, s := range ConfirmedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ConfirmSubmission marks the order SENT when the supplier schedule lists its
// delivery date with an accepting status. It reports whether it did.
func (s *Service) ConfirmSubmission(ctx context.Context, id int64, rows []SubmissionRow) (bool, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	delivery := DateOnly(order.Delivery)
	for _, row := range rows {
		if !DateOnly(row.Delivery).Equal(delivery) {
			continue
		}
		if !IsConfirmedStatus(row.Status) {
			return false, nil
		}
		if order.State == StateSent {
			return true, nil
		}
		// the supplier accepted the order, so the send deadline no longer applies
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.Get(ctx, id)
			if err != nil {
				return err
			}
			if !CanTransition(current.State, StateSent) {
				return fmt.Errorf("%w: cannot confirm order in state %s", ErrInvalidState, current.State)
			}
			return tx.UpdateState(ctx, id, StateSent)
		})
		if err != nil {
			return false, err
		}
		s.recordAudit(ctx, "ORDER_SEND", id, map[string]any{
			"delivery":  delivery.Format(time.DateOnly),
			"confirmed": row.Status,
		})
		return true, nil
	}
	return false, nil
}

// MissingArticle is an article below its minimum level that was not ordered.
type MissingArticle struct {
	ArticleID   string
	Description string
	MinLevel    float64
}

// CheckSend lists the articles with a minimum level that the order does not
// cover: no line at all, or a line with neither stock nor ordered weight.
func (s *Service) CheckSend(ctx context.Context, id int64) ([]MissingArticle, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.State != StateInProgress {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidState, id, order.State)
	}
	articles, err := s.catalog.ListInStock(ctx)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.Lines(ctx, id)
	if err != nil {
		return nil, err
	}
	byID := indexLines(lines)
	var missing []MissingArticle
	for _, a := range articles {
		if a.MinLevel <= 0 {
			continue
		}
		line, ok := byID[a.ID]
		if ok && (line.Stock > 0 || line.Ordered > 0) {
			continue
		}
		missing = append(missing, MissingArticle{ArticleID: a.ID, Description: a.Description, MinLevel: a.MinLevel})
	}
	return missing, nil
}

// Delete removes an order with its lines, supplemental lines and any
// reconciliation in progress. Orders past IN_PROGRESS need confirmed.
func (s *Service) Delete(ctx context.Context, id int64, confirmed bool) error {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.State != StateInProgress && !confirmed {
		return fmt.Errorf("order %d is %s: %w", id, order.State, shared.ErrConfirmationRequired)
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	}); err != nil {
		return err
	}
	if s.evicter != nil {
		s.evicter.Remove(id)
	}
	s.recordAudit(ctx, "ORDER_DELETE", id, map[string]any{"state": string(order.State)})
	return nil
}

// SupplementalInput describes a supplemental order.
type SupplementalInput struct {
	Kind  SupplementalKind
	Date  time.Time
	Lines []SupplementalLine
}

// AttachSupplemental replaces the supplemental order of a sent or received order.
func (s *Service) AttachSupplemental(ctx context.Context, id int64, in SupplementalInput) error {
	if in.Kind == SupplementalNone || !in.Kind.Valid() {
		return shared.Invalid("supplemental kind %q", in.Kind)
	}
	if in.Date.IsZero() {
		return shared.Invalid("supplemental date is required")
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.State == StateInProgress {
		return fmt.Errorf("%w: supplemental order on an order still in progress", ErrInvalidState)
	}
	lines := make([]SupplementalLine, 0, len(in.Lines))
	var total float64
	for _, l := range in.Lines {
		if l.Weight < 0 {
			return shared.Invalid("negative weight for %s", l.ArticleID)
		}
		w := shared.RoundKg(l.Weight)
		if w == 0 {
			continue
		}
		if l.Description == "" {
			a, err := s.catalog.Get(ctx, l.ArticleID)
			if err != nil {
				return err
			}
			l.Description = a.Description
		}
		l.OrderID, l.Weight = id, w
		lines = append(lines, l)
		total += w
	}
	if total <= 0 {
		return shared.Invalid("supplemental order has no weight")
	}
	date := DateOnly(in.Date)
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ReplaceSupplementalLines(ctx, id, lines); err != nil {
			return err
		}
		return tx.SetSupplemental(ctx, id, in.Kind, &date)
	}); err != nil {
		return err
	}
	s.recordAudit(ctx, "ORDER_SUPPLEMENTAL_ATTACH", id, map[string]any{"kind": string(in.Kind), "weight": shared.RoundKg(total)})
	return nil
}

// DetachSupplemental removes the supplemental order.
func (s *Service) DetachSupplemental(ctx context.Context, id int64) error {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.State == StateInProgress {
		return fmt.Errorf("%w: supplemental order on an order still in progress", ErrInvalidState)
	}
	if order.Supplemental == SupplementalNone || order.Supplemental == "" {
		return shared.Invalid("order %d has no supplemental order", id)
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ReplaceSupplementalLines(ctx, id, nil); err != nil {
			return err
		}
		return tx.SetSupplemental(ctx, id, SupplementalNone, nil)
	}); err != nil {
		return err
	}
	s.recordAudit(ctx, "ORDER_SUPPLEMENTAL_DETACH", id, nil)
	return nil
}

// DocumentKind tells what a supplier document proves.
type DocumentKind string

const (
	// DocumentInvoice proves the goods were delivered.
	DocumentInvoice DocumentKind = "INVOICE"
	// DocumentOrderConfirmation proves the order was accepted.
	DocumentOrderConfirmation DocumentKind = "ORDER_CONFIRMATION"
)

// State is the order state a document of this kind yields.
func (k DocumentKind) State() (State, error) {
	switch k {
	case DocumentInvoice:
		return StateReceived, nil
	case DocumentOrderConfirmation:
		return StateSent, nil
	}
	return "", shared.Invalid("document kind %q", k)
}

// ImportRow is one normalized row of a supplier document.
type ImportRow struct {
	ArticleID   string
	Description string
	Weight      float64
	UnitCost    float64
}

// ImportDocument is a parsed supplier document.
type ImportDocument struct {
	PlacedAt time.Time
	Delivery time.Time
	Kind     DocumentKind
	Rows     []ImportRow
}

// ImportOptions resolves the overwrite decision.
type ImportOptions struct {
	Overwrite bool
}

// Import records an order from a supplier document. An existing order with
// the same delivery date is replaced only when opts.Overwrite is set.
func (s *Service) Import(ctx context.Context, doc ImportDocument, opts ImportOptions) (Order, error) {
	state, err := doc.Kind.State()
	if err != nil {
		return Order{}, err
	}
	if doc.PlacedAt.IsZero() || doc.Delivery.IsZero() {
		return Order{}, shared.Invalid("document dates are required")
	}
	if len(doc.Rows) == 0 {
		return Order{}, shared.Invalid("document has no rows")
	}
	incoming := make(map[string]float64, len(doc.Rows))
	for _, row := range doc.Rows {
		if row.ArticleID == "" || row.Weight < 0 || row.UnitCost < 0 {
			return Order{}, shared.Invalid("invalid document row %q", row.ArticleID)
		}
		if _, dup := incoming[row.ArticleID]; dup {
			return Order{}, shared.Invalid("article %s appears twice in the document", row.ArticleID)
		}
		incoming[row.ArticleID] = row.Weight
	}
	delivery := DateOnly(doc.Delivery)
	existing, exists, err := s.repo.FindByDelivery(ctx, delivery)
	if err != nil {
		return Order{}, err
	}
	if exists && !opts.Overwrite {
		return Order{}, fmt.Errorf("order %d already delivers on %s: %w", existing.ID, delivery.Format(time.DateOnly), shared.ErrConfirmationRequired)
	}
	stock, err := s.Estimate(ctx, doc.PlacedAt, incoming)
	if err != nil {
		return Order{}, err
	}

	order := Order{PlacedAt: doc.PlacedAt, Delivery: delivery, State: state, Supplemental: SupplementalNone}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if exists {
			order.ID = existing.ID
			order.Supplemental = existing.Supplemental
			order.SupplementalDate = existing.SupplementalDate
			if err := tx.DeleteLines(ctx, existing.ID); err != nil {
				return err
			}
			if err := tx.UpdateSchedule(ctx, existing.ID, doc.PlacedAt, delivery); err != nil {
				return err
			}
			if err := tx.UpdateState(ctx, existing.ID, state); err != nil {
				return err
			}
		} else {
			id, err := tx.Create(ctx, order)
			if err != nil {
				return err
			}
			order.ID = id
		}
		for _, row := range doc.Rows {
			line := Line{
				OrderID:     order.ID,
				ArticleID:   row.ArticleID,
				Description: row.Description,
				Ordered:     shared.RoundKg(row.Weight),
				Price:       row.UnitCost,
				Stock:       stock[row.ArticleID],
			}
			if err := tx.UpsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "ORDER_IMPORT", order.ID, map[string]any{
		"kind":      string(doc.Kind),
		"rows":      len(doc.Rows),
		"overwrite": exists,
	})
	return order, nil
}

func (s *Service) ensureDeliveryFree(ctx context.Context, delivery time.Time, self int64) error {
	other, ok, err := s.repo.FindByDelivery(ctx, DateOnly(delivery))
	if err != nil {
		return err
	}
	if ok && other.ID != self {
		return fmt.Errorf("%w (%s, order %d)", ErrDeliveryTaken, delivery.Format(time.DateOnly), other.ID)
	}
	return nil
}

func (s *Service) precedingLines(ctx context.Context, placedAt time.Time) ([]Line, error) {
	prev, ok, err := s.repo.FindPreceding(ctx, placedAt)
	if err != nil || !ok {
		return nil, err
	}
	return s.repo.Lines(ctx, prev.ID)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "order", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("order_id", id), slog.Any("error", err))
	}
}

func indexLines(lines []Line) map[string]Line {
	out := make(map[string]Line, len(lines))
	for _, l := range lines {
		out[l.ArticleID] = l
	}
	return out
}

// SortByDescription orders lines the way they are printed and exported.
func SortByDescription(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Description == lines[j].Description {
			return lines[i].ArticleID < lines[j].ArticleID
		}
		return lines[i].Description < lines[j].Description
	})
}
