package finlife

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finboard/finboard/internal/platform/db"
	"github.com/finboard/finboard/internal/shared"
)

const productCodeConstraint = "deposit_products_code_key"

// Store holds the write operations one ingestion run performs.
type Store interface {
	UpsertProduct(ctx context.Context, p Product) (int64, error)
	UpsertOption(ctx context.Context, o Option) error
}

// Repository defines persistence operations for deposit products.
type Repository interface {
	InTx(ctx context.Context, fn func(Store) error) error
	InsertProduct(ctx context.Context, p Product) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ProductByCode(ctx context.Context, code string) (Product, error)
	OptionsByProduct(ctx context.Context, productID int64) ([]Option, error)
	TopRateOption(ctx context.Context) (OptionWithProduct, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InTx runs fn against a Store bound to a single transaction.
func (r *PGRepository) InTx(ctx context.Context, fn func(Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{q: tx})
	})
}

type pgStore struct {
	q db.DBTX
}

const upsertProductSQL = `
INSERT INTO deposit_products (fin_prdt_cd, kor_co_nm, fin_prdt_nm, join_way, join_member, join_deny, max_limit, etc_note, spcl_cnd)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (fin_prdt_cd) DO UPDATE SET
    kor_co_nm   = EXCLUDED.kor_co_nm,
    fin_prdt_nm = EXCLUDED.fin_prdt_nm,
    join_way    = EXCLUDED.join_way,
    join_member = EXCLUDED.join_member,
    join_deny   = EXCLUDED.join_deny,
    max_limit   = EXCLUDED.max_limit,
    etc_note    = EXCLUDED.etc_note,
    spcl_cnd    = EXCLUDED.spcl_cnd,
    updated_at  = NOW()
RETURNING id`

func (s *pgStore) UpsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, upsertProductSQL,
		p.Code, p.Company, p.Name, p.JoinWay, p.JoinMember, int16(p.JoinDeny), p.MaxLimit, p.EtcNote, p.SpecialCondition,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("finlife: upsert product %s: %w", p.Code, err)
	}
	return id, nil
}

const upsertOptionSQL = `
INSERT INTO deposit_options (product_id, save_trm, intr_rate, intr_rate2, intr_rate_type, intr_rate_type_nm)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (product_id, save_trm) DO UPDATE SET
    intr_rate         = EXCLUDED.intr_rate,
    intr_rate2        = EXCLUDED.intr_rate2,
    intr_rate_type    = EXCLUDED.intr_rate_type,
    intr_rate_type_nm = EXCLUDED.intr_rate_type_nm`

func (s *pgStore) UpsertOption(ctx context.Context, o Option) error {
	_, err := s.q.Exec(ctx, upsertOptionSQL, o.ProductID, o.SaveTerm, o.Rate, o.Rate2, o.RateType, o.RateTypeName)
	if err != nil {
		return fmt.Errorf("finlife: upsert option %d/%d: %w", o.ProductID, o.SaveTerm, err)
	}
	return nil
}

const productColumns = `p.id, p.fin_prdt_cd, p.kor_co_nm, p.fin_prdt_nm, p.join_way, p.join_member, p.join_deny, p.max_limit, p.etc_note, p.spcl_cnd`

func scanProduct(row pgx.Row, dest *Product) error {
	var joinDeny int16
	if err := row.Scan(&dest.ID, &dest.Code, &dest.Company, &dest.Name, &dest.JoinWay, &dest.JoinMember,
		&joinDeny, &dest.MaxLimit, &dest.EtcNote, &dest.SpecialCondition); err != nil {
		return err
	}
	dest.JoinDeny = JoinDeny(joinDeny)
	return nil
}

// InsertProduct stores a product created through the API.
func (r *PGRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	const query = `
INSERT INTO deposit_products (fin_prdt_cd, kor_co_nm, fin_prdt_nm, join_way, join_member, join_deny, max_limit, etc_note, spcl_cnd)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		p.Code, p.Company, p.Name, p.JoinWay, p.JoinMember, int16(p.JoinDeny), p.MaxLimit, p.EtcNote, p.SpecialCondition,
	).Scan(&p.ID)
	if err != nil {
		if shared.IsUniqueViolation(err, productCodeConstraint) {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, fmt.Errorf("finlife: insert product: %w", err)
	}
	return p, nil
}

// ListProducts returns every product in storage order.
func (r *PGRepository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM deposit_products p ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ProductByCode fetches one product by its code.
func (r *PGRepository) ProductByCode(ctx context.Context, code string) (Product, error) {
	var p Product
	err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM deposit_products p WHERE p.fin_prdt_cd = $1`, code), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// OptionsByProduct lists the options of one product in storage order.
func (r *PGRepository) OptionsByProduct(ctx context.Context, productID int64) ([]Option, error) {
	const query = `
SELECT id, product_id, save_trm, intr_rate, intr_rate2, intr_rate_type, intr_rate_type_nm
FROM deposit_options
WHERE product_id = $1
ORDER BY id`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	options := make([]Option, 0)
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.ProductID, &o.SaveTerm, &o.Rate, &o.Rate2, &o.RateType, &o.RateTypeName); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// TopRateOption returns the option with the highest reported intr_rate2.
// Ties resolve to the lowest product code, then the shortest term.
func (r *PGRepository) TopRateOption(ctx context.Context) (OptionWithProduct, error) {
	const query = `
SELECT o.id, o.product_id, o.save_trm, o.intr_rate, o.intr_rate2, o.intr_rate_type, o.intr_rate_type_nm,
       ` + productColumns + `
FROM deposit_options o
JOIN deposit_products p ON p.id = o.product_id
WHERE o.intr_rate2 IS NOT NULL AND o.intr_rate2 <> $1
ORDER BY o.intr_rate2 DESC, p.fin_prdt_cd ASC, o.save_trm ASC
LIMIT 1`
	var (
		out      OptionWithProduct
		joinDeny int16
	)
	err := r.pool.QueryRow(ctx, query, RateNotReported).Scan(
		&out.ID, &out.ProductID, &out.SaveTerm, &out.Rate, &out.Rate2, &out.RateType, &out.RateTypeName,
		&out.Product.ID, &out.Product.Code, &out.Product.Company, &out.Product.Name, &out.Product.JoinWay,
		&out.Product.JoinMember, &joinDeny, &out.Product.MaxLimit, &out.Product.EtcNote, &out.Product.SpecialCondition,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OptionWithProduct{}, ErrNotFound
		}
		return OptionWithProduct{}, err
	}
	out.Product.JoinDeny = JoinDeny(joinDeny)
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
