// Package finlife ingests deposit products from the FSS finlife open API and
// serves them as a JSON API.
package finlife

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/finboard/finboard/internal/shared"
)

// RateNotReported marks an interest rate the upstream did not publish.
const RateNotReported = -1.0

// JoinDeny classifies who may enroll in a product.
type JoinDeny int16

const (
	JoinUnrestricted        JoinDeny = 1
	JoinLowIncomeOnly       JoinDeny = 2
	JoinPartiallyRestricted JoinDeny = 3
)

// Valid reports whether d is a known restriction code.
func (d JoinDeny) Valid() bool {
	return d >= JoinUnrestricted && d <= JoinPartiallyRestricted
}

// Rate type codes published by the upstream.
const (
	RateTypeSimple   = "S"
	RateTypeCompound = "M"
)

var (
	// ErrNotFound is returned when a product or qualifying option is missing.
	ErrNotFound = shared.ErrNotFound
	// ErrUpstream indicates the finlife API returned no usable result.
	ErrUpstream = fmt.Errorf("finlife: upstream returned no result: %w", shared.ErrUpstream)
	// ErrInvalidProduct wraps field-level validation failures.
	ErrInvalidProduct = errors.New("finlife: invalid product")
)

// Product is one deposit product keyed by its product code.
type Product struct {
	ID               int64
	Code             string
	Company          string
	Name             string
	JoinWay          string
	JoinMember       string
	JoinDeny         JoinDeny
	MaxLimit         *int64
	EtcNote          string
	SpecialCondition string
}

// Option is one term length offered by a product.
type Option struct {
	ID           int64
	ProductID    int64
	SaveTerm     int
	Rate         float64
	Rate2        float64
	RateType     string
	RateTypeName string
}

// ProductWithOptions is a product together with every option referencing it.
type ProductWithOptions struct {
	Product
	Options []Option
}

// OptionWithProduct is an option joined with its owning product.
type OptionWithProduct struct {
	Option
	Product Product
}

// ProductRecord is one upstream baseList entry after decoding. Optional
// fields stay nil until the upsert engine applies defaults.
type ProductRecord struct {
	Code             string
	Company          string
	Name             string
	JoinWay          string
	JoinMember       string
	JoinDeny         *int64
	MaxLimit         *int64
	EtcNote          string
	SpecialCondition string
}

// OptionRecord is one upstream optionList entry after decoding.
type OptionRecord struct {
	ProductCode  string
	SaveTerm     int
	Rate         *float64
	Rate2        *float64
	RateType     string
	RateTypeName string
}

// Batch holds the product and option lists of one or more upstream pages.
type Batch struct {
	Products []ProductRecord
	Options  []OptionRecord
}

// Append adds other's records after b's.
func (b *Batch) Append(other Batch) {
	b.Products = append(b.Products, other.Products...)
	b.Options = append(b.Options, other.Options...)
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	Products int `json:"products"`
	Options  int `json:"options"`
	Skipped  int `json:"skipped"`
}

// ProductInput is the administrative create payload.
type ProductInput struct {
	Code             string `json:"fin_prdt_cd" validate:"required,max=200"`
	Company          string `json:"kor_co_nm" validate:"required,max=100"`
	Name             string `json:"fin_prdt_nm" validate:"required,max=200"`
	JoinWay          string `json:"join_way" validate:"required"`
	JoinMember       string `json:"join_member" validate:"required"`
	EtcNote          string `json:"etc_note" validate:"required"`
	SpecialCondition string `json:"spcl_cnd" validate:"required"`
	JoinDeny         *int   `json:"join_deny" validate:"omitempty,oneof=1 2 3"`
	MaxLimit         *int64 `json:"max_limit" validate:"omitempty,gte=0"`
}

// ValidationError lists offending fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("finlife: invalid fields: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidProduct
}
