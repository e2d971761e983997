package model

import "sort"

// ShipmentPayload is the body of POST /intern-awb.
type ShipmentPayload struct {
	ClientID  int        `json:"clientId"`
	Shipments []Shipment `json:"shipments"`
}

type Shipment struct {
	Info      ShipmentInfo `json:"info"`
	Recipient Recipient    `json:"recipient"`
}

type ShipmentInfo struct {
	Service                 string     `json:"service"`
	Packages                Packages   `json:"packages"`
	Weight                  float64    `json:"weight"`
	COD                     float64    `json:"cod"`
	DeclaredValue           float64    `json:"declaredValue"`
	Payment                 string     `json:"payment"`
	ReturnPayment           string     `json:"returnPayment"`
	DocumentType            string     `json:"documentType"`
	RbsPaymentAtDestination bool       `json:"rbsPaymentAtDestination"`
	Observation             string     `json:"observation"`
	Content                 string     `json:"content"`
	Dimensions              Dimensions `json:"dimensions"`
	Bank                    string     `json:"bank,omitempty"`
	BankAccount             string     `json:"bankAccount,omitempty"`
}

type Packages struct {
	Parcel   int `json:"parcel"`
	Envelope int `json:"envelope"`
}

type Dimensions struct {
	Length int `json:"length"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Recipient struct {
	Name          string           `json:"name"`
	Phone         string           `json:"phone"`
	Email         string           `json:"email,omitempty"`
	ContactPerson string           `json:"contactPerson,omitempty"`
	Address       RecipientAddress `json:"address"`
}

type RecipientAddress struct {
	County   string `json:"county"`
	Locality string `json:"locality"`
	Street   string `json:"street"`
	StreetNo string `json:"streetNo"`
	ZipCode  string `json:"zipCode"`
}

// CreateResult is the first element of the create response.
type CreateResult struct {
	AWBNumber string              `json:"awbNumber"`
	Status    string              `json:"status,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// FieldErrors flattens {"field":["msg"]} into sorted "field: msg" lines.
func (r CreateResult) FieldErrors() []string {
	fields := make([]string, 0, len(r.Errors))
	for f := range r.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		for _, m := range r.Errors[f] {
			out = append(out, f+": "+m)
		}
	}
	return out
}

type TrackingEvent struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Text is the status if present, else the description.
func (e TrackingEvent) Text() string {
	if e.Status != "" {
		return e.Status
	}
	return e.Description
}

type TariffRequest struct {
	Service       string  `json:"service"`
	ServiceTypeID int     `json:"service_type_id,omitempty"`
	County        string  `json:"county"`
	Locality      string  `json:"locality"`
	WeightKg      float64 `json:"weight"`
	Length        float64 `json:"length"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
}
