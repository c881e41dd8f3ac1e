package finlife

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/finboard/finboard/internal/shared"
)

// ============================================================================
// IN-MEMORY REPOSITORY
// ============================================================================

// memRepository keeps rows in slices so storage order matches insertion order.
// InTx restores the previous state when fn fails.
type memRepository struct {
	mu            sync.Mutex
	products      []Product
	options       []Option
	nextProductID int64
	nextOptionID  int64
	failOptions   error
	txCount       int
}

func newMemRepository() *memRepository {
	return &memRepository{}
}

func (r *memRepository) InTx(ctx context.Context, fn func(Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	products := append([]Product(nil), r.products...)
	options := append([]Option(nil), r.options...)
	nextProduct, nextOption := r.nextProductID, r.nextOptionID
	if err := fn(memStore{r}); err != nil {
		r.products, r.options = products, options
		r.nextProductID, r.nextOptionID = nextProduct, nextOption
		return err
	}
	return nil
}

type memStore struct {
	r *memRepository
}

func (s memStore) UpsertProduct(ctx context.Context, p Product) (int64, error) {
	for i := range s.r.products {
		if s.r.products[i].Code == p.Code {
			p.ID = s.r.products[i].ID
			s.r.products[i] = p
			return p.ID, nil
		}
	}
	s.r.nextProductID++
	p.ID = s.r.nextProductID
	s.r.products = append(s.r.products, p)
	return p.ID, nil
}

func (s memStore) UpsertOption(ctx context.Context, o Option) error {
	if s.r.failOptions != nil {
		return s.r.failOptions
	}
	for i := range s.r.options {
		if s.r.options[i].ProductID == o.ProductID && s.r.options[i].SaveTerm == o.SaveTerm {
			o.ID = s.r.options[i].ID
			s.r.options[i] = o
			return nil
		}
	}
	s.r.nextOptionID++
	o.ID = s.r.nextOptionID
	s.r.options = append(s.r.options, o)
	return nil
}

func (r *memRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if existing.Code == p.Code {
			return Product{}, shared.ErrDuplicate
		}
	}
	r.nextProductID++
	p.ID = r.nextProductID
	r.products = append(r.products, p)
	return p, nil
}

func (r *memRepository) ListProducts(ctx context.Context) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Product{}, r.products...), nil
}

func (r *memRepository) ProductByCode(ctx context.Context, code string) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.Code == code {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (r *memRepository) OptionsByProduct(ctx context.Context, productID int64) ([]Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Option, 0)
	for _, o := range r.options {
		if o.ProductID == productID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepository) TopRateOption(ctx context.Context) (OptionWithProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  OptionWithProduct
		found bool
	)
	for _, o := range r.options {
		if o.Rate2 == RateNotReported {
			continue
		}
		p := r.productByID(o.ProductID)
		candidate := OptionWithProduct{Option: o, Product: p}
		if !found || better(candidate, best) {
			best, found = candidate, true
		}
	}
	if !found {
		return OptionWithProduct{}, ErrNotFound
	}
	return best, nil
}

func better(a, b OptionWithProduct) bool {
	if a.Rate2 != b.Rate2 {
		return a.Rate2 > b.Rate2
	}
	if a.Product.Code != b.Product.Code {
		return a.Product.Code < b.Product.Code
	}
	return a.SaveTerm < b.SaveTerm
}

func (r *memRepository) productByID(id int64) Product {
	for _, p := range r.products {
		if p.ID == id {
			return p
		}
	}
	return Product{}
}

func (r *memRepository) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products), len(r.options)
}

// ============================================================================
// STUB FETCHER
// ============================================================================

type stubFetcher struct {
	batches map[string]Batch
	err     error
	calls   atomic.Int32
}

func (f *stubFetcher) FetchAll(ctx context.Context, group string) (Batch, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Batch{}, f.err
	}
	b, ok := f.batches[group]
	if !ok {
		return Batch{}, errors.New("unexpected group " + group)
	}
	return b, nil
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt(v int64) *int64 { return &v }

func sampleBatch() Batch {
	return Batch{
		Products: []ProductRecord{
			{Code: "P-A", Company: "Alpha Bank", Name: "Alpha Deposit", JoinWay: "online", JoinDeny: ptrInt(1)},
			{Code: "P-B", Company: "Beta Bank", Name: "Beta Deposit", MaxLimit: ptrInt(5000000)},
		},
		Options: []OptionRecord{
			{ProductCode: "P-A", SaveTerm: 12, Rate: ptrFloat(3.1), Rate2: ptrFloat(3.5), RateType: RateTypeSimple, RateTypeName: "simple"},
			{ProductCode: "P-A", SaveTerm: 6, Rate: nil, Rate2: nil, RateType: RateTypeSimple, RateTypeName: "simple"},
			{ProductCode: "P-B", SaveTerm: 24, Rate: ptrFloat(2.9), Rate2: ptrFloat(4.7), RateType: RateTypeCompound, RateTypeName: "compound"},
			{ProductCode: "P-UNKNOWN", SaveTerm: 12, Rate: ptrFloat(9.9), Rate2: ptrFloat(9.9)},
		},
	}
}
