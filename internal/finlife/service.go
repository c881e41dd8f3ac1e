package finlife

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/internal/shared"
)

// Fetcher retrieves every configured page of one financial group.
type Fetcher interface {
	FetchAll(ctx context.Context, group string) (Batch, error)
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Groups        []string
	Cache         *Cache
	Metrics       *Metrics
	Logger        *slog.Logger
	IngestTimeout time.Duration
}

// Service implements ingestion and queries over deposit products.
type Service struct {
	repo          Repository
	fetcher       Fetcher
	groups        []string
	cache         *Cache
	metrics       *Metrics
	logger        *slog.Logger
	validate      *validator.Validate
	ingestTimeout time.Duration
	flight        singleflight.Group
}

// NewService constructs a Service.
func NewService(repo Repository, fetcher Fetcher, cfg ServiceConfig) *Service {
	groups := cfg.Groups
	if len(groups) == 0 {
		groups = []string{GroupBanks}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.IngestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		repo:          repo,
		fetcher:       fetcher,
		groups:        groups,
		cache:         cfg.Cache,
		metrics:       cfg.Metrics,
		logger:        logger,
		validate:      v,
		ingestTimeout: timeout,
	}
}

// Groups returns the financial groups ingested by default.
func (s *Service) Groups() []string {
	return append([]string(nil), s.groups...)
}

// Ingest runs one ingestion over the default groups.
func (s *Service) Ingest(ctx context.Context) (IngestResult, error) {
	return s.IngestGroups(ctx, s.groups)
}

// IngestGroups fetches every group and upserts the merged batch in a single
// transaction. Concurrent calls for the same groups share one run.
func (s *Service) IngestGroups(ctx context.Context, groups []string) (IngestResult, error) {
	if len(groups) == 0 {
		groups = s.groups
	}
	key := strings.Join(groups, ",")
	ch := s.flight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ingestTimeout)
		defer cancel()
		return s.ingest(runCtx, groups)
	})
	select {
	case <-ctx.Done():
		return IngestResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return IngestResult{}, res.Err
		}
		return res.Val.(IngestResult), nil
	}
}

func (s *Service) ingest(ctx context.Context, groups []string) (result IngestResult, err error) {
	started := time.Now()
	logger := s.logger.With(slog.String("groups", strings.Join(groups, ",")))
	defer func() {
		s.metrics.observe(result, err)
		if err != nil {
			logger.Error("finlife ingest failed", slog.Any("error", err))
			return
		}
		logger.Info("finlife ingest completed",
			slog.Int("products", result.Products),
			slog.Int("options", result.Options),
			slog.Int("skipped", result.Skipped),
			slog.Duration("took", time.Since(started)))
	}()

	batches := make([]Batch, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		g.Go(func() error {
			b, err := s.fetcher.FetchAll(gctx, group)
			if err != nil {
				return fmt.Errorf("group %s: %w", group, err)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestResult{}, err
	}

	var merged Batch
	for _, b := range batches {
		merged.Append(b)
	}

	err = s.repo.InTx(ctx, func(store Store) error {
		var txErr error
		result, txErr = upsertBatch(ctx, store, merged)
		return txErr
	})
	if err != nil {
		return IngestResult{}, err
	}
	s.invalidate(ctx)
	return result, nil
}

// ListProducts returns every product without options.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := s.cache.Fetch(ctx, "products", &products, func(ctx context.Context) (any, error) {
		return s.repo.ListProducts(ctx)
	})
	return products, err
}

// ProductWithOptions returns the product with the given code and its options.
func (s *Service) ProductWithOptions(ctx context.Context, code string) (ProductWithOptions, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ProductWithOptions{}, ErrNotFound
	}
	var out ProductWithOptions
	err := s.cache.Fetch(ctx, "product:"+code, &out, func(ctx context.Context) (any, error) {
		product, err := s.repo.ProductByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		options, err := s.repo.OptionsByProduct(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		return ProductWithOptions{Product: product, Options: options}, nil
	})
	return out, err
}

// TopRateOption returns the option with the highest reported preferential rate.
func (s *Service) TopRateOption(ctx context.Context) (OptionWithProduct, error) {
	var out OptionWithProduct
	err := s.cache.Fetch(ctx, "top-rate", &out, func(ctx context.Context) (any, error) {
		return s.repo.TopRateOption(ctx)
	})
	return out, err
}

// CreateProduct validates input and inserts a product without options.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	in.Code = strings.TrimSpace(in.Code)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fieldMessage(fe)
			}
			return Product{}, &ValidationError{Fields: fields}
		}
		return Product{}, err
	}

	p := Product{
		Code:             in.Code,
		Company:          in.Company,
		Name:             in.Name,
		JoinWay:          in.JoinWay,
		JoinMember:       in.JoinMember,
		JoinDeny:         JoinUnrestricted,
		MaxLimit:         in.MaxLimit,
		EtcNote:          in.EtcNote,
		SpecialCondition: in.SpecialCondition,
	}
	if in.JoinDeny != nil {
		p.JoinDeny = JoinDeny(*in.JoinDeny)
	}

	created, err := s.repo.InsertProduct(ctx, p)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return Product{}, &ValidationError{Fields: map[string]string{
				"fin_prdt_cd": "deposit product with this fin_prdt_cd already exists.",
			}}
		}
		return Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("finlife cache bump", slog.Any("error", err))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	default:
		return fmt.Sprintf("Failed the %s rule.", fe.Tag())
	}
}

func isUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
