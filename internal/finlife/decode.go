package finlife

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// The finlife API is inconsistent about numbers: save_trm and join_deny arrive
// as strings, rates as numbers or null, max_limit as a number or null.

type flexInt struct {
	Value int64
	Valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexInt{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = flexInt{}
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexInt{Value: int64(v), Valid: true}
	return nil
}

func (f flexInt) ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = flexFloat{}
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexFloat{Value: v, Valid: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

type envelope struct {
	Result *apiResult `json:"result"`
}

type apiResult struct {
	ProductDivision string       `json:"prdt_div"`
	TotalCount      flexInt      `json:"total_count"`
	MaxPageNo       flexInt      `json:"max_page_no"`
	NowPageNo       flexInt      `json:"now_page_no"`
	ErrCode         string       `json:"err_cd"`
	ErrMsg          string       `json:"err_msg"`
	BaseList        []apiProduct `json:"baseList"`
	OptionList      []apiOption  `json:"optionList"`
}

type apiProduct struct {
	FinPrdtCd  string  `json:"fin_prdt_cd"`
	KorCoNm    string  `json:"kor_co_nm"`
	FinPrdtNm  string  `json:"fin_prdt_nm"`
	JoinWay    string  `json:"join_way"`
	JoinMember string  `json:"join_member"`
	JoinDeny   flexInt `json:"join_deny"`
	MaxLimit   flexInt `json:"max_limit"`
	EtcNote    string  `json:"etc_note"`
	SpclCnd    string  `json:"spcl_cnd"`
}

type apiOption struct {
	FinPrdtCd      string    `json:"fin_prdt_cd"`
	SaveTrm        flexInt   `json:"save_trm"`
	IntrRate       flexFloat `json:"intr_rate"`
	IntrRate2      flexFloat `json:"intr_rate2"`
	IntrRateType   string    `json:"intr_rate_type"`
	IntrRateTypeNm string    `json:"intr_rate_type_nm"`
}

// empty reports a result object that carries neither a status code nor any
// list, which the upstream sends when it has nothing to say.
func (r *apiResult) empty() bool {
	return strings.TrimSpace(r.ErrCode) == "" && r.BaseList == nil && r.OptionList == nil
}

func (r *apiResult) batch() Batch {
	b := Batch{
		Products: make([]ProductRecord, 0, len(r.BaseList)),
		Options:  make([]OptionRecord, 0, len(r.OptionList)),
	}
	for _, p := range r.BaseList {
		b.Products = append(b.Products, ProductRecord{
			Code:             cleanText(p.FinPrdtCd),
			Company:          cleanText(p.KorCoNm),
			Name:             cleanText(p.FinPrdtNm),
			JoinWay:          cleanText(p.JoinWay),
			JoinMember:       cleanText(p.JoinMember),
			JoinDeny:         p.JoinDeny.ptr(),
			MaxLimit:         p.MaxLimit.ptr(),
			EtcNote:          cleanText(p.EtcNote),
			SpecialCondition: cleanText(p.SpclCnd),
		})
	}
	for _, o := range r.OptionList {
		b.Options = append(b.Options, OptionRecord{
			ProductCode:  cleanText(o.FinPrdtCd),
			SaveTerm:     int(o.SaveTrm.Value),
			Rate:         o.IntrRate.ptr(),
			Rate2:        o.IntrRate2.ptr(),
			RateType:     cleanText(o.IntrRateType),
			RateTypeName: cleanText(o.IntrRateTypeNm),
		})
	}
	return b
}

// cleanText trims and NFC-normalises upstream text so decomposed Hangul
// compares equal to its composed form.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
