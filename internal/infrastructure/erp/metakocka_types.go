package erp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// flexString accepts a JSON string or number; Metakocka mixes both for numeric fields.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(data)
	return nil
}

// apiStatus is embedded in every response; opr_code "0" or absent means success.
type apiStatus struct {
	OprCode    string `json:"opr_code"`
	OprDescApp string `json:"opr_desc_app"`
}

func (s apiStatus) failed() bool {
	return s.OprCode != "" && s.OprCode != "0"
}

type stockRequest struct {
	SecretKey string `json:"secret_key"`
	CompanyID string `json:"company_id"`
	WhIDList  string `json:"wh_id_list"`
	Limit     string `json:"limit"`
	Offset    string `json:"offset"`
}

type stockResponse struct {
	apiStatus
	StockList []stockLine `json:"stock_list"`
}

type stockLine struct {
	Code      string     `json:"code"`
	Amount    flexString `json:"amount"`
	CountCode string     `json:"count_code"`
	MkID      flexString `json:"mk_id"`
}

type productListRequest struct {
	SecretKey       string `json:"secret_key"`
	CompanyID       string `json:"company_id"`
	Code            string `json:"code"`
	ReturnPricelist string `json:"return_pricelist"`
}

type productListResponse struct {
	apiStatus
	ProductList []productLine `json:"product_list"`
}

type productLine struct {
	Code      string          `json:"code"`
	Pricelist []pricelistLine `json:"pricelist"`
}

type pricelistLine struct {
	Title     string    `json:"title"`
	ValidFrom string    `json:"valid_from"`
	PriceDef  *priceDef `json:"price_def"`
}

type priceDef struct {
	Price   flexString `json:"price"`
	TaxDesc flexString `json:"tax_desc"`
}
