package finlife

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finboard/finboard/internal/platform/httpx"
)

// IngestEnqueuer hands ingestion off to the background worker.
type IngestEnqueuer interface {
	EnqueueIngest(ctx context.Context, groups []string) (taskID, queue string, err error)
}

// Handler exposes the deposit product JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer IngestEnqueuer
}

// NewHandler constructs a Handler. enqueuer may be nil, which disables the
// ingest-jobs endpoint.
func NewHandler(logger *slog.Logger, service *Service, enqueuer IngestEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers finlife routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/save-products", h.saveProducts)
	r.Get("/deposit-products", h.listProducts)
	r.Post("/deposit-products", h.createProduct)
	r.Get("/deposit-product-options/{code}", h.productOptions)
	r.Get("/top-rate", h.topRate)
	r.Post("/ingest-jobs", h.enqueueIngest)
}

type productResponse struct {
	Code             string `json:"fin_prdt_cd"`
	Company          string `json:"kor_co_nm"`
	Name             string `json:"fin_prdt_nm"`
	JoinWay          string `json:"join_way"`
	JoinMember       string `json:"join_member"`
	EtcNote          string `json:"etc_note"`
	SpecialCondition string `json:"spcl_cnd"`
}

type optionResponse struct {
	ID           int64   `json:"id"`
	SaveTerm     int     `json:"save_trm"`
	Rate         float64 `json:"intr_rate"`
	Rate2        float64 `json:"intr_rate2"`
	RateType     string  `json:"intr_rate_type"`
	RateTypeName string  `json:"intr_rate_type_nm"`
}

type productDetailResponse struct {
	productResponse
	JoinDeny int              `json:"join_deny"`
	MaxLimit *int64           `json:"max_limit"`
	Options  []optionResponse `json:"options"`
}

type topRateResponse struct {
	optionResponse
	Product productResponse `json:"product"`
}

type ingestResponse struct {
	Message string `json:"message"`
	IngestResult
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		Code:             p.Code,
		Company:          p.Company,
		Name:             p.Name,
		JoinWay:          p.JoinWay,
		JoinMember:       p.JoinMember,
		EtcNote:          p.EtcNote,
		SpecialCondition: p.SpecialCondition,
	}
}

func toOptionResponse(o Option) optionResponse {
	return optionResponse{
		ID:           o.ID,
		SaveTerm:     o.SaveTerm,
		Rate:         o.Rate,
		Rate2:        o.Rate2,
		RateType:     o.RateType,
		RateTypeName: o.RateTypeName,
	}
}

func (h *Handler) saveProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Ingest(r.Context())
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			httpx.Error(w, http.StatusBadRequest, "The finlife API call failed or returned no data.")
			return
		}
		h.logger.Error("ingest deposit products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ingestResponse{
		Message:      "Deposit products and options saved.",
		IngestResult: result,
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list deposit products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.ValidationProblem(w, map[string]string{"body": "Malformed JSON payload."})
		return
	}
	if _, err := h.service.CreateProduct(r.Context(), in); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpx.ValidationProblem(w, verr.Fields)
			return
		}
		h.logger.Error("create deposit product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Deposit product created.")
}

func (h *Handler) productOptions(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.ProductWithOptions(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Deposit product not found.")
			return
		}
		h.logger.Error("load deposit product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := productDetailResponse{
		productResponse: toProductResponse(detail.Product),
		JoinDeny:        int(detail.JoinDeny),
		MaxLimit:        detail.MaxLimit,
		Options:         make([]optionResponse, 0, len(detail.Options)),
	}
	for _, o := range detail.Options {
		out.Options = append(out.Options, toOptionResponse(o))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) topRate(w http.ResponseWriter, r *http.Request) {
	top, err := h.service.TopRateOption(r.Context())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Message(w, http.StatusNotFound, "No option with a reported preferential rate was found.")
			return
		}
		h.logger.Error("load top rate option", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, topRateResponse{
		optionResponse: toOptionResponse(top.Option),
		Product:        toProductResponse(top.Product),
	})
}

func (h *Handler) enqueueIngest(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "background ingestion is not configured")
		return
	}
	taskID, queue, err := h.enqueuer.EnqueueIngest(r.Context(), h.service.Groups())
	if err != nil {
		h.logger.Error("enqueue finlife ingest", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "queue": queue})
}
