package finlife

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/platform/httpx"
)

const samplePage = `{
  "result": {
    "prdt_div": "D",
    "total_count": "2",
    "max_page_no": "1",
    "now_page_no": "1",
    "err_cd": "000",
    "err_msg": "정상",
    "baseList": [
      {"dcls_month": "202410", "fin_co_no": "0010001", "kor_co_nm": "우리은행", "fin_prdt_cd": "WR0001B",
       "fin_prdt_nm": "WON플러스예금", "join_way": "인터넷,스마트폰", "mtrt_int": "만기 후 1개월 이내 : 만기시점 약정이율×50%",
       "spcl_cnd": "해당사항 없음", "join_deny": "1", "join_member": "실명의 개인", "etc_note": "- 가입기간: 1~36개월",
       "max_limit": null},
      {"kor_co_nm": "한국스탠다드차타드은행", "fin_prdt_cd": "01211", "fin_prdt_nm": "e-그린세이브예금",
       "join_deny": "3", "max_limit": 100000000}
    ],
    "optionList": [
      {"fin_prdt_cd": "WR0001B", "intr_rate_type": "S", "intr_rate_type_nm": "단리", "save_trm": "12", "intr_rate": 3.1, "intr_rate2": 3.55},
      {"fin_prdt_cd": "WR0001B", "intr_rate_type": "S", "intr_rate_type_nm": "단리", "save_trm": "6", "intr_rate": null, "intr_rate2": null},
      {"fin_prdt_cd": "01211", "intr_rate_type": "M", "intr_rate_type_nm": "복리", "save_trm": "24", "intr_rate": "2.9", "intr_rate2": "3.4"}
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, maxPages int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		MaxPages:       maxPages,
		PagesPerSecond: 1000,
		HTTPClient:     srv.Client(),
	})
}

func TestClientFetchDecodesMixedNumberEncodings(t *testing.T) {
	var gotQuery atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		assert.Equal(t, "/depositProductsSearch.json", r.URL.Path)
		_, _ = w.Write([]byte(samplePage))
	}, 1)

	page, err := client.Fetch(context.Background(), GroupBanks, 1)
	require.NoError(t, err)

	query := gotQuery.Load().(url.Values)
	assert.Equal(t, []string{"test-key"}, query["auth"])
	assert.Equal(t, []string{"020000"}, query["topFinGrpNo"])
	assert.Equal(t, []string{"1"}, query["pageNo"])

	require.Len(t, page.Products, 2)
	first := page.Products[0]
	assert.Equal(t, "WR0001B", first.Code)
	assert.Equal(t, "우리은행", first.Company)
	require.NotNil(t, first.JoinDeny)
	assert.EqualValues(t, 1, *first.JoinDeny)
	assert.Nil(t, first.MaxLimit)

	second := page.Products[1]
	assert.Equal(t, "", second.JoinWay)
	require.NotNil(t, second.MaxLimit)
	assert.EqualValues(t, 100000000, *second.MaxLimit)

	require.Len(t, page.Options, 3)
	assert.Equal(t, 12, page.Options[0].SaveTerm)
	require.NotNil(t, page.Options[0].Rate2)
	assert.InDelta(t, 3.55, *page.Options[0].Rate2, 1e-9)
	assert.Nil(t, page.Options[1].Rate)
	assert.Nil(t, page.Options[1].Rate2)
	require.NotNil(t, page.Options[2].Rate)
	assert.InDelta(t, 2.9, *page.Options[2].Rate, 1e-9)
	assert.Equal(t, 1, page.MaxPage)
	assert.Equal(t, 2, page.Total)
}

func TestClientFetchMissingResultIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "no auth"}`))
	}, 1)

	_, err := client.Fetch(context.Background(), GroupBanks, 1)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClientFetchEmptyResultIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {}}`))
	}, 1)

	_, err := client.Fetch(context.Background(), GroupBanks, 1)
	require.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, httpx.ErrUpstream)
}

func TestClientFetchMissingListsAreEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"err_cd": "000", "baseList": null}}`))
	}, 1)

	page, err := client.Fetch(context.Background(), GroupBanks, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.Empty(t, page.Options)
}

func TestClientFetchUpstreamErrorCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"err_cd": "010", "err_msg": "미등록 인증키"}}`))
	}, 1)

	_, err := client.Fetch(context.Background(), GroupBanks, 1)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "010")
}

func TestClientFetchNon2xxIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 1)

	_, err := client.Fetch(context.Background(), GroupBanks, 1)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClientNormalisesDecomposedHangul(t *testing.T) {
	decomposed := "\u110b\u1173\u11ab\u1112\u1162\u11bc" // conjoining jamo (NFD)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result": {"baseList": [{"fin_prdt_cd": " X1 ", "kor_co_nm": "%s"}]}}`, decomposed)
	}, 1)

	page, err := client.Fetch(context.Background(), GroupBanks, 1)
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "X1", page.Products[0].Code)
	assert.Equal(t, "\uc740\ud589", page.Products[0].Company)
}

func TestClientFetchAllStopsAtPageCap(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
		fmt.Fprintf(w, `{"result": {"max_page_no": 5, "baseList": [{"fin_prdt_cd": "P%d"}],
			"optionList": [{"fin_prdt_cd": "P%d", "save_trm": "12"}]}}`, page, page)
	}, 3)

	batch, err := client.FetchAll(context.Background(), GroupBanks)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, batch.Products, 3)
	assert.Equal(t, "P1", batch.Products[0].Code)
	assert.Equal(t, "P3", batch.Products[2].Code)
	assert.Len(t, batch.Options, 3)
}

func TestClientFetchAllDefaultsToFirstPage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"result": {"max_page_no": 4, "baseList": []}}`))
	}, 0)

	_, err := client.FetchAll(context.Background(), GroupBanks)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}
