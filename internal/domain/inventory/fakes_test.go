package inventory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"foodledger/internal/core/apperror"
	appctx "foodledger/internal/core/context"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain"
)

const testTenant = "tenant-1"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func q(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func money(s string) types.Money { return types.MustMoney(s) }

func days(n int) *time.Time {
	t := testNow.Add(time.Duration(n) * 24 * time.Hour)
	return &t
}

func tenantCtx() context.Context { return tenantCtxFor(testTenant) }

func tenantCtxFor(tenantID string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:   "user-1",
		TenantID: tenantID,
	})
}

// store is the shared in-memory state behind the fake repositories.
type store struct {
	mu        sync.Mutex
	records   map[id.ID]*Record
	movements []Movement
}

func newStore() *store {
	return &store{records: map[id.ID]*Record{}}
}

func (s *store) snapshot() (map[id.ID]*Record, []Movement) {
	recs := make(map[id.ID]*Record, len(s.records))
	for k, v := range s.records {
		recs[k] = v.Clone()
	}
	return recs, slices.Clone(s.movements)
}

// --- tx ---

type txKey struct{}

// fakeTx serialises transactions and restores the store when fn fails.
type fakeTx struct {
	st    *store
	txMu  sync.Mutex
	count int
}

func (f *fakeTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.count++

	f.st.mu.Lock()
	recs, ms := f.st.snapshot()
	f.st.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		f.st.mu.Lock()
		f.st.records, f.st.movements = recs, ms
		f.st.mu.Unlock()
		return err
	}
	return nil
}

// --- records ---

type fakeRecords struct {
	st *store
	// failUpdate, when set, is returned by the next Update.
	failUpdate error
}

func (f *fakeRecords) Insert(_ context.Context, r *Record) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, existing := range f.st.records {
		if existing.TenantID == r.TenantID && existing.Key().String() == r.Key().String() {
			return apperror.NewAlreadyExists(entityName, r.Key().String())
		}
	}
	r.Version = 1
	f.st.records[r.ID] = r.Clone()
	return nil
}

func (f *fakeRecords) Update(_ context.Context, r *Record) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if f.failUpdate != nil {
		err := f.failUpdate
		f.failUpdate = nil
		return err
	}
	cur, ok := f.st.records[r.ID]
	if !ok || cur.TenantID != r.TenantID {
		return apperror.NewNotFound(entityName, r.ID.String())
	}
	if cur.Version != r.Version {
		return apperror.NewConcurrentModification(entityName, r.ID.String())
	}
	r.Version++
	f.st.records[r.ID] = r.Clone()
	return nil
}

func (f *fakeRecords) Get(_ context.Context, tenantID string, inventoryID id.ID) (*Record, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	r, ok := f.st.records[inventoryID]
	if !ok || r.TenantID != tenantID {
		return nil, apperror.NewNotFound(entityName, inventoryID.String())
	}
	return r.Clone(), nil
}

func (f *fakeRecords) GetForUpdate(ctx context.Context, tenantID string, inventoryID id.ID) (*Record, error) {
	return f.Get(ctx, tenantID, inventoryID)
}

func (f *fakeRecords) FindByKey(_ context.Context, tenantID string, key Key) (*Record, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, r := range f.st.records {
		if r.TenantID == tenantID && r.Key().String() == key.String() {
			return r.Clone(), nil
		}
	}
	return nil, apperror.NewNotFound(entityName, key.String())
}

func (f *fakeRecords) FindByKeyForUpdate(ctx context.Context, tenantID string, key Key) (*Record, error) {
	return f.FindByKey(ctx, tenantID, key)
}

func (f *fakeRecords) List(_ context.Context, tenantID string, filter ListFilter) (domain.ListResult[Record], error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var items []Record
	for _, r := range f.st.records {
		if r.TenantID != tenantID || (!r.IsActive && !filter.IncludeInactive) {
			continue
		}
		if filter.LowStock && !r.Alerts.LowStock {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(r.ProductSKU+" "+r.ProductName), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.ExpiringTo != nil && !hasLotExpiringBetween(r, filter.ExpiringFrom, *filter.ExpiringTo) {
			continue
		}
		items = append(items, *r.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductSKU < items[j].ProductSKU })

	total := int64(len(items))
	start := min(filter.Page.Offset(), len(items))
	end := min(start+filter.Page.Normalize().Limit, len(items))
	return domain.ListResult[Record]{
		Items:      items[start:end],
		TotalCount: total,
		Limit:      filter.Page.Normalize().Limit,
		Offset:     start,
	}, nil
}

func hasLotExpiringBetween(r *Record, from *time.Time, to time.Time) bool {
	for _, l := range r.Lots {
		if l.Status != LotAvailable || l.AvailableQuantity <= 0 || l.ExpirationDate == nil {
			continue
		}
		if from != nil && l.ExpirationDate.Before(*from) {
			continue
		}
		if !l.ExpirationDate.After(to) {
			return true
		}
	}
	return false
}

func (f *fakeRecords) Summary(_ context.Context, tenantID string) (Summary, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	sum := Summary{TotalValue: types.Zero()}
	for _, r := range f.st.records {
		if r.TenantID != tenantID || !r.IsActive {
			continue
		}
		sum.TotalProducts++
		if r.Alerts.LowStock {
			sum.LowStockCount++
		}
		if r.Alerts.NearExpiration {
			sum.NearExpirationCount++
		}
		if r.Alerts.Expired {
			sum.ExpiredCount++
		}
		sum.TotalValue = sum.TotalValue.Add(r.Value())
	}
	return sum, nil
}

func (f *fakeRecords) StockByProduct(_ context.Context, tenantID string, productIDs []id.ID) ([]ProductStock, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	by := map[id.ID]*ProductStock{}
	var order []id.ID
	for _, r := range f.st.records {
		if r.TenantID != tenantID || !r.IsActive {
			continue
		}
		if len(productIDs) > 0 && !slices.Contains(productIDs, r.ProductID) {
			continue
		}
		ps, ok := by[r.ProductID]
		if !ok {
			ps = &ProductStock{ProductID: r.ProductID}
			by[r.ProductID] = ps
			order = append(order, r.ProductID)
		}
		ps.Records++
		ps.TotalQuantity += r.TotalQuantity
		ps.AvailableQuantity += r.AvailableQuantity
		ps.ReservedQuantity += r.ReservedQuantity
	}
	out := make([]ProductStock, 0, len(order))
	for _, pid := range order {
		out = append(out, *by[pid])
	}
	return out, nil
}

// --- movements ---

type fakeMovements struct {
	st *store
}

func (f *fakeMovements) Append(_ context.Context, ms []Movement) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.movements = append(f.st.movements, ms...)
	return nil
}

func (f *fakeMovements) ByOrder(_ context.Context, tenantID, orderID string) ([]Movement, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []Movement
	for _, m := range f.st.movements {
		if m.TenantID == tenantID && deref(m.OrderID) == orderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMovements) ByInventory(_ context.Context, tenantID string, inventoryID id.ID) ([]Movement, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []Movement
	for _, m := range f.st.movements {
		if m.TenantID == tenantID && m.InventoryID == inventoryID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMovements) List(_ context.Context, tenantID string, filter MovementFilter) (domain.ListResult[Movement], error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var items []Movement
	for i := len(f.st.movements) - 1; i >= 0; i-- {
		m := f.st.movements[i]
		if m.TenantID != tenantID {
			continue
		}
		if filter.InventoryID != nil && m.InventoryID != *filter.InventoryID {
			continue
		}
		if filter.MovementType != "" && m.MovementType != filter.MovementType {
			continue
		}
		if filter.OrderID != "" && deref(m.OrderID) != filter.OrderID {
			continue
		}
		items = append(items, m)
	}
	return domain.ListResult[Movement]{Items: items, TotalCount: int64(len(items)), Limit: filter.Page.Normalize().Limit}, nil
}

func (f *fakeMovements) ExpiredReservations(_ context.Context, now time.Time, limit int) ([]OrderRef, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	byOrder := map[OrderRef][]Movement{}
	var expired []OrderRef
	for _, m := range f.st.movements {
		if m.OrderID == nil {
			continue
		}
		ref := OrderRef{TenantID: m.TenantID, OrderID: *m.OrderID}
		byOrder[ref] = append(byOrder[ref], m)
		if m.MovementType == MovementReservation && m.ExpiresAt != nil && m.ExpiresAt.Before(now) && !slices.Contains(expired, ref) {
			expired = append(expired, ref)
		}
	}
	var out []OrderRef
	for _, ref := range expired {
		if len(outstandingHolds(byOrder[ref], nil)) > 0 {
			out = append(out, ref)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMovements) all() []Movement {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return slices.Clone(f.st.movements)
}

// --- collaborators ---

type fakeCatalog struct {
	settings map[id.ID]ProductSettings
}

func (f *fakeCatalog) Settings(_ context.Context, _ string, productID id.ID) (ProductSettings, error) {
	ps, ok := f.settings[productID]
	if !ok {
		return ProductSettings{}, apperror.NewNotFound("product", productID.String())
	}
	return ps, nil
}

type alertCall struct {
	inventoryID id.ID
	delta       AlertDelta
}

type recordingNotifier struct {
	calls []alertCall
}

func (r *recordingNotifier) AlertRaised(_ context.Context, rec *Record, delta AlertDelta) error {
	r.calls = append(r.calls, alertCall{inventoryID: rec.ID, delta: delta})
	return nil
}

type recordingPoster struct {
	posted []Movement
}

func (r *recordingPoster) MovementPosted(_ context.Context, _ *Record, m *Movement) error {
	r.posted = append(r.posted, *m)
	return nil
}

type auditCall struct {
	action        string
	before, after Balance
}

type recordingAudit struct {
	calls []auditCall
}

func (r *recordingAudit) LogChange(_ context.Context, action string, before, after *Record) error {
	r.calls = append(r.calls, auditCall{action: action, before: before.Snapshot(), after: after.Snapshot()})
	return nil
}

// --- harness ---

type harness struct {
	svc       *Service
	st        *store
	records   *fakeRecords
	movements *fakeMovements
	catalog   *fakeCatalog
	tx        *fakeTx
	notifier  *recordingNotifier
	poster    *recordingPoster
	audit     *recordingAudit
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newStore()
	h := &harness{
		st:        st,
		records:   &fakeRecords{st: st},
		movements: &fakeMovements{st: st},
		catalog:   &fakeCatalog{settings: map[id.ID]ProductSettings{}},
		tx:        &fakeTx{st: st},
		notifier:  &recordingNotifier{},
		poster:    &recordingPoster{},
		audit:     &recordingAudit{},
		clock:     testNow,
	}
	h.svc = NewService(Config{
		Records:   h.records,
		Movements: h.movements,
		Catalog:   h.catalog,
		Alerts:    h.notifier,
		Costs:     h.poster,
		Audit:     h.audit,
		TxManager: h.tx,
		Clock:     func() time.Time { return h.clock },
	})
	return h
}

// stored returns the persisted state of a record.
func (h *harness) stored(t *testing.T, inventoryID id.ID) *Record {
	t.Helper()
	r, err := h.records.Get(context.Background(), testTenant, inventoryID)
	if err != nil {
		t.Fatalf("record %s not stored: %v", inventoryID, err)
	}
	return r
}

func (h *harness) create(t *testing.T, sku string, total float64, cost string, lots ...LotInput) *Record {
	t.Helper()
	rec, err := h.svc.Create(tenantCtx(), CreateInput{
		ProductID:     id.New(),
		ProductSKU:    sku,
		ProductName:   "Product " + sku,
		TotalQuantity: q(total),
		AverageCost:   money(cost),
		Lots:          lots,
	})
	if err != nil {
		t.Fatalf("create %s: %v", sku, err)
	}
	return rec
}

// assertInvariants checks the record and lot invariants of everything stored.
func (h *harness) assertInvariants(t *testing.T) {
	t.Helper()
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	for _, r := range h.st.records {
		if !r.Snapshot().Consistent() {
			t.Errorf("record %s: total %s != available %s + reserved %s",
				r.SKU(), r.TotalQuantity, r.AvailableQuantity, r.ReservedQuantity)
		}
		for _, l := range r.Lots {
			if l.AvailableQuantity+l.ReservedQuantity > l.Quantity {
				t.Errorf("lot %s of %s: available %s + reserved %s > quantity %s",
					l.LotNumber, r.SKU(), l.AvailableQuantity, l.ReservedQuantity, l.Quantity)
			}
		}
	}
}
