package orders

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sisco70/tabacchi/internal/catalog"
	"github.com/sisco70/tabacchi/internal/shared"
)

type memoryCatalog struct {
	articles []catalog.Article
}

func (c *memoryCatalog) List(context.Context) ([]catalog.Article, error) {
	return append([]catalog.Article(nil), c.articles...), nil
}

func (c *memoryCatalog) ListInStock(context.Context) ([]catalog.Article, error) {
	var out []catalog.Article
	for _, a := range c.articles {
		if a.InStock {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *memoryCatalog) Get(_ context.Context, id string) (catalog.Article, error) {
	for _, a := range c.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return catalog.Article{}, shared.ErrNotFound
}

type memoryOrderRepo struct {
	orders   map[int64]Order
	lines    map[int64]map[string]Line
	supp     map[int64][]SupplementalLine
	failNext error
	nextID   int64
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders: make(map[int64]Order),
		lines:  make(map[int64]map[string]Line),
		supp:   make(map[int64][]SupplementalLine),
	}
}

func (r *memoryOrderRepo) snapshot() *memoryOrderRepo {
	cp := newMemoryOrderRepo()
	cp.nextID = r.nextID
	for id, o := range r.orders {
		cp.orders[id] = o
	}
	for id, ls := range r.lines {
		m := make(map[string]Line, len(ls))
		for k, v := range ls {
			m[k] = v
		}
		cp.lines[id] = m
	}
	for id, ls := range r.supp {
		cp.supp[id] = append([]SupplementalLine(nil), ls...)
	}
	return cp
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	err := fn(ctx, &memoryOrderTx{repo: r})
	if err == nil && r.failNext != nil {
		err, r.failNext = r.failNext, nil
	}
	if err != nil {
		r.orders, r.lines, r.supp, r.nextID = before.orders, before.lines, before.supp, before.nextID
	}
	return err
}

func (r *memoryOrderRepo) Get(_ context.Context, id int64) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *memoryOrderRepo) Lines(_ context.Context, id int64) ([]Line, error) {
	var out []Line
	for _, l := range r.lines[id] {
		out = append(out, l)
	}
	SortByDescription(out)
	return out, nil
}

func (r *memoryOrderRepo) SupplementalLines(_ context.Context, id int64) ([]SupplementalLine, error) {
	return append([]SupplementalLine(nil), r.supp[id]...), nil
}

func (r *memoryOrderRepo) List(_ context.Context, since time.Time) ([]Summary, error) {
	var out []Summary
	for _, o := range r.orders {
		if !o.PlacedAt.After(since) {
			continue
		}
		s := Summary{Order: o}
		for _, l := range r.lines[o.ID] {
			s.Weight += l.Ordered
			s.Cost += l.Cost()
		}
		for _, l := range r.supp[o.ID] {
			s.SupplementalWeight += l.Weight
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out, nil
}

func (r *memoryOrderRepo) sorted() []Order {
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}

func (r *memoryOrderRepo) Latest(context.Context) (Order, bool, error) {
	all := r.sorted()
	if len(all) == 0 {
		return Order{}, false, nil
	}
	return all[len(all)-1], true, nil
}

func (r *memoryOrderRepo) CountNotReceived(context.Context) (int, error) {
	n := 0
	for _, o := range r.orders {
		if o.State != StateReceived {
			n++
		}
	}
	return n, nil
}

func (r *memoryOrderRepo) FindByDelivery(_ context.Context, delivery time.Time) (Order, bool, error) {
	for _, o := range r.orders {
		if DateOnly(o.Delivery).Equal(DateOnly(delivery)) {
			return o, true, nil
		}
	}
	return Order{}, false, nil
}

func (r *memoryOrderRepo) FindPreceding(_ context.Context, placedAt time.Time) (Order, bool, error) {
	all := r.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].PlacedAt.Before(placedAt) {
			return all[i], true, nil
		}
	}
	return Order{}, false, nil
}

func (r *memoryOrderRepo) FindFollowing(_ context.Context, placedAt time.Time) (Order, bool, error) {
	for _, o := range r.sorted() {
		if o.PlacedAt.After(placedAt) {
			return o, true, nil
		}
	}
	return Order{}, false, nil
}

func (t *memoryOrderTx) Get(ctx context.Context, id int64) (Order, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryOrderTx) Create(_ context.Context, o Order) (int64, error) {
	for _, other := range t.repo.orders {
		if DateOnly(other.Delivery).Equal(DateOnly(o.Delivery)) {
			return 0, ErrDeliveryTaken
		}
	}
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = o
	return o.ID, nil
}

func (t *memoryOrderTx) update(id int64, fn func(*Order)) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	fn(&o)
	t.repo.orders[id] = o
	return nil
}

func (t *memoryOrderTx) UpdateState(_ context.Context, id int64, state State) error {
	return t.update(id, func(o *Order) { o.State = state })
}

func (t *memoryOrderTx) UpdateSchedule(_ context.Context, id int64, placedAt, delivery time.Time) error {
	return t.update(id, func(o *Order) { o.PlacedAt, o.Delivery = placedAt, DateOnly(delivery) })
}

func (t *memoryOrderTx) SetResumeIndex(_ context.Context, id int64, index int) error {
	return t.update(id, func(o *Order) { o.ResumeIndex = index })
}

func (t *memoryOrderTx) SetSupplemental(_ context.Context, id int64, kind SupplementalKind, date *time.Time) error {
	return t.update(id, func(o *Order) { o.Supplemental, o.SupplementalDate = kind, date })
}

func (t *memoryOrderTx) UpsertLine(_ context.Context, l Line) error {
	if t.repo.lines[l.OrderID] == nil {
		t.repo.lines[l.OrderID] = make(map[string]Line)
	}
	t.repo.lines[l.OrderID][l.ArticleID] = l
	return nil
}

func (t *memoryOrderTx) DeleteLines(_ context.Context, id int64) error {
	delete(t.repo.lines, id)
	return nil
}

func (t *memoryOrderTx) ReplaceSupplementalLines(_ context.Context, id int64, lines []SupplementalLine) error {
	t.repo.supp[id] = append([]SupplementalLine(nil), lines...)
	return nil
}

func (t *memoryOrderTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.repo.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(t.repo.orders, id)
	delete(t.repo.lines, id)
	delete(t.repo.supp, id)
	return nil
}

type memoryAudit struct {
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func testCatalog() *memoryCatalog {
	return &memoryCatalog{articles: []catalog.Article{
		{ID: "A1", Description: "Marlboro Rosse", UnitWeight: 0.2, PricePerKg: 300, MinLevel: 2, InStock: true, Barcode: "800100"},
		{ID: "A2", Description: "Camel Blu", UnitWeight: 0.2, PricePerKg: 280, MinLevel: 1, InStock: true, Barcode: "800200"},
		{ID: "A3", Description: "Toscano", UnitWeight: 0.1, PricePerKg: 400, MinLevel: 0, InStock: true},
		{ID: "A9", Description: "Fuori produzione", UnitWeight: 0.2, PricePerKg: 100, MinLevel: 3, InStock: false},
	}}
}

func newTestService(now time.Time) (*Service, *memoryOrderRepo, *memoryAudit) {
	repo := newMemoryOrderRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, testCatalog(), NewDeadlinePolicy(DefaultConfig(), nil), audit, nil)
	svc.now = func() time.Time { return now }
	return svc, repo, audit
}

func seedOrder(repo *memoryOrderRepo, o Order, lines ...Line) Order {
	repo.nextID++
	o.ID = repo.nextID
	if o.Supplemental == "" {
		o.Supplemental = SupplementalNone
	}
	repo.orders[o.ID] = o
	repo.lines[o.ID] = make(map[string]Line)
	for _, l := range lines {
		l.OrderID = o.ID
		repo.lines[o.ID][l.ArticleID] = l
	}
	return o
}

func TestCreateOrderUsesDeadlinePolicy(t *testing.T) {
	svc, repo, audit := newTestService(at(2024, time.March, 5, 9, 0))
	seedOrder(repo, Order{PlacedAt: at(2024, time.February, 27, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateReceived})

	order, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateInProgress, order.State)
	require.Equal(t, at(2024, time.March, 7, 0, 0), order.Delivery)
	require.Equal(t, SupplementalNone, order.Supplemental)
	require.Equal(t, []string{"ORDER_CREATE"}, audit.actions())
}

func TestCreateOrderGuards(t *testing.T) {
	now := at(2024, time.March, 5, 9, 0)

	svc, repo, _ := newTestService(now)
	seedOrder(repo, Order{PlacedAt: at(2024, time.February, 27, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateSent})
	_, err := svc.Create(context.Background())
	require.ErrorIs(t, err, ErrOpenOrderExists)
	require.ErrorIs(t, err, shared.ErrValidation)

	svc, repo, _ = newTestService(now)
	seedOrder(repo, Order{PlacedAt: at(2024, time.March, 6, 9, 0), Delivery: at(2024, time.March, 14, 0, 0), State: StateReceived})
	_, err = svc.Create(context.Background())
	require.ErrorIs(t, err, ErrNotLatest)

	svc, repo, _ = newTestService(now)
	seedOrder(repo, Order{PlacedAt: at(2024, time.March, 1, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateReceived})
	_, err = svc.Create(context.Background())
	require.ErrorIs(t, err, ErrDeliveryTaken)

	svc, _, _ = newTestService(now)
	svc.catalog = &memoryCatalog{}
	_, err = svc.Create(context.Background())
	require.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestRecordLineComputesConsumptionFromPreviousOrder(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 9, 0))
	seedOrder(repo, Order{PlacedAt: at(2024, time.February, 27, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateReceived},
		Line{ArticleID: "A1", Description: "Marlboro Rosse", Stock: 1.2, Ordered: 2, Price: 290})
	cur := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 5, 8, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})

	line, err := svc.RecordLine(context.Background(), LineInput{OrderID: cur.ID, ArticleID: "A1", Stock: 0.8, Ordered: 2.4})
	require.NoError(t, err)
	require.InDelta(t, 2.4, line.Consumption, 1e-9)
	require.InDelta(t, 300.0, line.Price, 1e-9)

	line, err = svc.RecordLine(context.Background(), LineInput{OrderID: cur.ID, ArticleID: "A2", Stock: 0.4, Ordered: 0.6})
	require.NoError(t, err)
	require.Zero(t, line.Consumption)

	lines, err := svc.Lines(context.Background(), cur.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	_, err = svc.RecordLine(context.Background(), LineInput{OrderID: cur.ID, ArticleID: "A1", Stock: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordLine(context.Background(), LineInput{OrderID: cur.ID, ArticleID: "ZZ", Stock: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordLineReviewModeLocksOrderedWeight(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 9, 0))
	sent := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 5, 8, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateSent},
		Line{ArticleID: "A1", Description: "Marlboro Rosse", Stock: 1, Ordered: 2, Price: 290})

	_, err := svc.RecordLine(context.Background(), LineInput{OrderID: sent.ID, ArticleID: "A1", Stock: 1, Ordered: 3})
	require.ErrorIs(t, err, ErrInvalidState)

	line, err := svc.RecordLine(context.Background(), LineInput{OrderID: sent.ID, ArticleID: "A1", Stock: 0.6, Ordered: 2})
	require.NoError(t, err)
	require.InDelta(t, 0.6, line.Stock, 1e-9)
	require.InDelta(t, 290.0, line.Price, 1e-9)
}

func TestSendTransitionsAndReschedules(t *testing.T) {
	svc, repo, audit := newTestService(at(2024, time.March, 5, 10, 0))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})

	sent, err := svc.Send(context.Background(), o.ID, SendOptions{})
	require.NoError(t, err)
	require.Equal(t, StateSent, sent.State)
	require.Equal(t, StateSent, repo.orders[o.ID].State)

	_, err = svc.Send(context.Background(), o.ID, SendOptions{})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, []string{"ORDER_SEND"}, audit.actions())
}

func TestSendAfterDeadlineNeedsShift(t *testing.T) {
	now := at(2024, time.March, 5, 14, 0)
	svc, repo, _ := newTestService(now)
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})

	_, err := svc.Send(context.Background(), o.ID, SendOptions{})
	var late *DeadlineError
	require.ErrorAs(t, err, &late)
	require.Equal(t, at(2024, time.March, 5, 11, 0), late.Deadline)
	require.Equal(t, at(2024, time.March, 14, 0, 0), late.Proposed.Delivery)
	require.Equal(t, StateInProgress, repo.orders[o.ID].State)

	sent, err := svc.Send(context.Background(), o.ID, SendOptions{ShiftIfLate: true})
	require.NoError(t, err)
	require.Equal(t, StateSent, sent.State)
	require.Equal(t, now, repo.orders[o.ID].PlacedAt)
	require.Equal(t, at(2024, time.March, 14, 0, 0), repo.orders[o.ID].Delivery)
}

func TestConfirmSubmission(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})

	ok, err := svc.ConfirmSubmission(context.Background(), o.ID, []SubmissionRow{
		{Delivery: at(2024, time.March, 14, 0, 0), Status: "Evaso"},
		{Delivery: at(2024, time.March, 7, 0, 0), Status: "Annullato"},
	})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, StateInProgress, repo.orders[o.ID].State)

	ok, err = svc.ConfirmSubmission(context.Background(), o.ID, []SubmissionRow{
		{Delivery: at(2024, time.March, 7, 0, 0), Status: "In lavorazione"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateSent, repo.orders[o.ID].State)
}

func TestConfirmSubmissionAfterCutoff(t *testing.T) {
	svc, repo, audit := newTestService(at(2024, time.March, 5, 11, 30))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})

	ok, err := svc.ConfirmSubmission(context.Background(), o.ID, []SubmissionRow{
		{Delivery: at(2024, time.March, 7, 0, 0), Status: "In lavorazione"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateSent, repo.orders[o.ID].State)
	require.Equal(t, at(2024, time.March, 7, 0, 0), repo.orders[o.ID].Delivery)
	require.Equal(t, []string{"ORDER_SEND"}, audit.actions())

	ok, err = svc.ConfirmSubmission(context.Background(), o.ID, []SubmissionRow{
		{Delivery: at(2024, time.March, 7, 0, 0), Status: "Evaso"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, audit.actions(), 1)
}

func TestCheckSendListsUncoveredArticles(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress},
		Line{ArticleID: "A2", Stock: 0, Ordered: 0})

	missing, err := svc.CheckSend(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	require.Equal(t, "A1", missing[0].ArticleID)
	require.Equal(t, "A2", missing[1].ArticleID)

	repo.lines[o.ID]["A1"] = Line{OrderID: o.ID, ArticleID: "A1", Stock: 2}
	missing, err = svc.CheckSend(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
}

func TestDeleteNeedsConfirmationOutsideInProgress(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	open := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})
	sent := seedOrder(repo, Order{PlacedAt: at(2024, time.February, 26, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateSent},
		Line{ArticleID: "A1", Ordered: 2})
	repo.supp[sent.ID] = []SupplementalLine{{OrderID: sent.ID, ArticleID: "A1", Weight: 1}}

	require.NoError(t, svc.Delete(context.Background(), open.ID, false))
	require.NotContains(t, repo.orders, open.ID)

	err := svc.Delete(context.Background(), sent.ID, false)
	require.ErrorIs(t, err, shared.ErrConfirmationRequired)
	require.Contains(t, repo.orders, sent.ID)

	require.NoError(t, svc.Delete(context.Background(), sent.ID, true))
	require.NotContains(t, repo.orders, sent.ID)
	require.NotContains(t, repo.lines, sent.ID)
	require.NotContains(t, repo.supp, sent.ID)
}

type recordingEvicter struct{ removed []int64 }

func (r *recordingEvicter) Remove(orderID int64) { r.removed = append(r.removed, orderID) }

func TestDeleteEvictsOrderSession(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	evicter := &recordingEvicter{}
	svc.WithEvicter(evicter)
	sent := seedOrder(repo, Order{PlacedAt: at(2024, time.February, 26, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateSent},
		Line{ArticleID: "A1", Ordered: 2})

	require.ErrorIs(t, svc.Delete(context.Background(), sent.ID, false), shared.ErrConfirmationRequired)
	require.Empty(t, evicter.removed)

	require.NoError(t, svc.Delete(context.Background(), sent.ID, true))
	require.Equal(t, []int64{sent.ID}, evicter.removed)

	require.Error(t, svc.Delete(context.Background(), sent.ID, true))
	require.Len(t, evicter.removed, 1)
}

func TestSupplementalAttachAndDetach(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	open := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})
	sent := seedOrder(repo, Order{PlacedAt: at(2024, time.February, 26, 9, 0), Delivery: at(2024, time.February, 29, 0, 0), State: StateSent})
	ctx := context.Background()
	day := at(2024, time.March, 1, 15, 0)

	err := svc.AttachSupplemental(ctx, open.ID, SupplementalInput{Kind: SupplementalUrgent, Date: day, Lines: []SupplementalLine{{ArticleID: "A1", Weight: 1}}})
	require.ErrorIs(t, err, ErrInvalidState)

	err = svc.AttachSupplemental(ctx, sent.ID, SupplementalInput{Kind: SupplementalUrgent, Date: day, Lines: []SupplementalLine{{ArticleID: "A1", Weight: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.AttachSupplemental(ctx, sent.ID, SupplementalInput{Kind: SupplementalUrgent, Lines: []SupplementalLine{{ArticleID: "A1", Weight: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.AttachSupplemental(ctx, sent.ID, SupplementalInput{Kind: SupplementalUrgent, Date: day, Lines: []SupplementalLine{
		{ArticleID: "A1", Weight: 1.0004},
		{ArticleID: "A2", Weight: 0},
	}})
	require.NoError(t, err)
	got := repo.orders[sent.ID]
	require.Equal(t, SupplementalUrgent, got.Supplemental)
	require.Equal(t, at(2024, time.March, 1, 0, 0), *got.SupplementalDate)
	require.Len(t, repo.supp[sent.ID], 1)
	require.Equal(t, "Marlboro Rosse", repo.supp[sent.ID][0].Description)
	require.InDelta(t, 1.0, repo.supp[sent.ID][0].Weight, 1e-9)

	require.NoError(t, svc.DetachSupplemental(ctx, sent.ID))
	got = repo.orders[sent.ID]
	require.Equal(t, SupplementalNone, got.Supplemental)
	require.Nil(t, got.SupplementalDate)
	require.Empty(t, repo.supp[sent.ID])

	require.ErrorIs(t, svc.DetachSupplemental(ctx, sent.ID), shared.ErrValidation)
	require.ErrorIs(t, svc.DetachSupplemental(ctx, open.ID), ErrInvalidState)
}

func TestImportEstimatesStockAndHonoursOverwrite(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 20, 10, 0))
	seedOrder(repo, Order{PlacedAt: at(2024, time.March, 1, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateReceived},
		Line{ArticleID: "A1", Stock: 3, Ordered: 2},
		Line{ArticleID: "A2", Stock: 1, Ordered: 1})
	seedOrder(repo, Order{PlacedAt: at(2024, time.March, 15, 9, 0), Delivery: at(2024, time.March, 21, 0, 0), State: StateReceived},
		Line{ArticleID: "A1", Stock: 2, Ordered: 2.5})
	ctx := context.Background()

	doc := ImportDocument{
		PlacedAt: at(2024, time.March, 8, 9, 0),
		Delivery: at(2024, time.March, 14, 0, 0),
		Kind:     DocumentInvoice,
		Rows: []ImportRow{
			{ArticleID: "A1", Description: "Marlboro Rosse", Weight: 1.6, UnitCost: 300},
			{ArticleID: "A2", Description: "Camel Blu", Weight: 0.2, UnitCost: 280},
		},
	}
	order, err := svc.Import(ctx, doc, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, StateReceived, order.State)

	lines := repo.lines[order.ID]
	// min(5, 4.5) - 1.6
	require.InDelta(t, 2.9, lines["A1"].Stock, 1e-9)
	// A2 only in the preceding order: catalog minimum 1 - 0.2
	require.InDelta(t, 0.8, lines["A2"].Stock, 1e-9)
	require.InDelta(t, 1.6, lines["A1"].Ordered, 1e-9)
	require.Zero(t, lines["A1"].Consumption)

	doc.Kind = DocumentOrderConfirmation
	doc.Rows = doc.Rows[:1]
	_, err = svc.Import(ctx, doc, ImportOptions{})
	require.ErrorIs(t, err, shared.ErrConfirmationRequired)

	again, err := svc.Import(ctx, doc, ImportOptions{Overwrite: true})
	require.NoError(t, err)
	require.Equal(t, order.ID, again.ID)
	require.Equal(t, StateSent, repo.orders[order.ID].State)
	require.Len(t, repo.lines[order.ID], 1)
}

func TestImportRejectsBadDocuments(t *testing.T) {
	svc, _, _ := newTestService(at(2024, time.March, 20, 10, 0))
	ctx := context.Background()
	_, err := svc.Import(ctx, ImportDocument{Kind: "FAX"}, ImportOptions{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Import(ctx, ImportDocument{PlacedAt: at(2024, time.March, 8, 9, 0), Delivery: at(2024, time.March, 14, 0, 0), Kind: DocumentInvoice}, ImportOptions{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Import(ctx, ImportDocument{
		PlacedAt: at(2024, time.March, 8, 9, 0), Delivery: at(2024, time.March, 14, 0, 0), Kind: DocumentInvoice,
		Rows: []ImportRow{{ArticleID: "A1", Weight: 1}, {ArticleID: "A1", Weight: 2}},
	}, ImportOptions{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFailedTransactionLeavesOrderUntouched(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress})
	cause := errors.New("disk full")
	repo.failNext = &shared.PersistenceError{Op: "orders: update state", Err: cause}

	_, err := svc.Send(context.Background(), o.ID, SendOptions{})
	require.ErrorIs(t, err, cause)
	require.Equal(t, StateInProgress, repo.orders[o.ID].State)
}

func TestSheetSuggestsOrderWhileEditable(t *testing.T) {
	svc, repo, _ := newTestService(at(2024, time.March, 5, 10, 0))
	o := seedOrder(repo, Order{PlacedAt: at(2024, time.March, 4, 9, 0), Delivery: at(2024, time.March, 7, 0, 0), State: StateInProgress},
		Line{ArticleID: "A1", Stock: 0.4})

	_, rows, err := svc.Sheet(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.True(t, rows[0].HasLine)
	require.InDelta(t, 1.6, rows[0].Suggested, 1e-9)
	require.InDelta(t, 1.0, rows[1].Suggested, 1e-9)

	require.NoError(t, svc.SetResumeIndex(context.Background(), o.ID, 2))
	require.Equal(t, 2, repo.orders[o.ID].ResumeIndex)
}
