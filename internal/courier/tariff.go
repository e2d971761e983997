package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"github.com/bharathbbg/awb-reconciler/internal/transport"
)

var serviceTypeIDs = map[string]int{
	"Standard":      1,
	"Express Loco":  3,
	"Cont Colector": 4,
	"Red Code":      7,
	"FANbox":        27,
	"FANbox COD":    28,
}

// ServiceTypeID maps a service name to its numeric id, defaulting to Standard.
func ServiceTypeID(req model.TariffRequest) int {
	if req.ServiceTypeID > 0 {
		return req.ServiceTypeID
	}
	if id, ok := serviceTypeIDs[req.Service]; ok {
		return id
	}
	return 1
}

// Tariff quotes a shipment through the ecommerce API.
func (c *Client) Tariff(ctx context.Context, req model.TariffRequest) (float64, error) {
	const op = "courier.tariff"
	form := url.Values{
		"serviceTypeId":     {strconv.Itoa(ServiceTypeID(req))},
		"recipientCounty":   {req.County},
		"recipientLocality": {req.Locality},
		"weight":            {formatNum(req.WeightKg)},
		"length":            {formatNum(req.Length)},
		"width":             {formatNum(req.Width)},
		"height":            {formatNum(req.Height)},
	}
	resp, err := c.postForm(ctx, "/get-tariff", form)
	if err != nil {
		return 0, err
	}

	var out struct {
		Tariff json.Number `json:"tariff"`
	}
	if err := resp.Decode(&out); err != nil || out.Tariff == "" {
		return 0, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body), Err: err}
	}
	price, err := out.Tariff.Float64()
	if err != nil {
		return 0, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body), Err: err}
	}
	return price, nil
}

// CheckService reports whether the service covers the destination.
func (c *Client) CheckService(ctx context.Context, req model.TariffRequest) (bool, error) {
	form := url.Values{
		"serviceTypeId":     {strconv.Itoa(ServiceTypeID(req))},
		"recipientCounty":   {req.County},
		"recipientLocality": {req.Locality},
		"weight":            {formatNum(req.WeightKg)},
		"packageLength":     {formatNum(req.Length)},
		"packageWidth":      {formatNum(req.Width)},
		"packageHeight":     {formatNum(req.Height)},
	}
	resp, err := c.postForm(ctx, "/check-service", form)
	if err != nil {
		return false, err
	}

	if resp.JSON {
		var out struct {
			Available any `json:"available"`
		}
		if err := resp.Decode(&out); err == nil && out.Available != nil {
			return truthy(out.Available), nil
		}
	}
	return strings.TrimSpace(string(resp.Body)) == "1", nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*transport.Response, error) {
	return c.call(ctx, FamilyEcommerce, transport.Request{
		Method: http.MethodPost,
		URL:    c.cfg.EcommerceURL + path,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   []byte(form.Encode()),
	})
}

func formatNum(v float64) string {
	if v <= 0 {
		v = 1
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	}
	return false
}
