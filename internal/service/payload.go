package service

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/model"
)

const (
	serviceStandard      = "Standard"
	serviceCollector     = "Cont Colector"
	paymentMethodCOD     = "cod"
	defaultPhone         = "0000000000"
	defaultCounty        = "B"
	observationLimit     = 113
	observationCut       = 110
	productNameLimit     = 30
	recipientNameLimit   = 100
	contactPersonLimit   = 50
	phoneLimit           = 16
	minWeightKg          = 0.1
	defaultItemWeightKg  = 1.0
	defaultPackageLength = 30
	defaultPackageWidth  = 20
	defaultPackageHeight = 10
)

var countyNames = map[string]string{
	"AB": "Alba", "AR": "Arad", "AG": "Arges", "BC": "Bacau",
	"BH": "Bihor", "BN": "Bistrita-Nasaud", "BT": "Botosani", "BV": "Brasov",
	"BR": "Braila", "B": "Bucuresti", "BZ": "Buzau", "CS": "Caras-Severin",
	"CL": "Calarasi", "CJ": "Cluj", "CT": "Constanta", "CV": "Covasna",
	"DB": "Dambovita", "DJ": "Dolj", "GL": "Galati", "GR": "Giurgiu",
	"GJ": "Gorj", "HR": "Harghita", "HD": "Hunedoara", "IL": "Ialomita",
	"IS": "Iasi", "IF": "Ilfov", "MM": "Maramures", "MH": "Mehedinti",
	"MS": "Mures", "NT": "Neamt", "OT": "Olt", "PH": "Prahova",
	"SM": "Satu Mare", "SJ": "Salaj", "SB": "Sibiu", "SV": "Suceava",
	"TR": "Teleorman", "TM": "Timis", "TL": "Tulcea", "VS": "Vaslui",
	"VL": "Valcea", "VN": "Vrancea",
}

// IdempotencyKey is stable for an order across retries and processes.
func IdempotencyKey(order *model.Order) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(order.CreatedAt.Unix(), 10)))
	return "order-" + order.ID + "-" + hex.EncodeToString(sum[:])[:16]
}

// BuildPayload validates the recipient before anything else and reports every
// missing field at once.
func BuildPayload(order *model.Order, sender config.SenderConfig, parcels int) (model.ShipmentPayload, error) {
	const op = "service.build_payload"
	ship, bill := order.Shipping, order.Billing

	name := recipientName(order)
	city := firstNonEmpty(ship.City, bill.City)
	zip := stripSpace(firstNonEmpty(ship.ZipCode, bill.ZipCode))

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if city == "" {
		missing = append(missing, "city")
	}
	if zip == "" {
		missing = append(missing, "postal_code")
	}
	if len(missing) > 0 {
		return model.ShipmentPayload{}, apperror.Validation(op, missing)
	}

	if m := missingSender(sender); len(m) > 0 {
		return model.ShipmentPayload{}, apperror.Config(op, "sender settings incomplete: "+strings.Join(m, ", "))
	}

	if parcels < 1 {
		parcels = 1
	}

	service, cod := serviceStandard, 0.0
	if order.PaymentMethod == paymentMethodCOD {
		service, cod = serviceCollector, order.Total
	}

	street := strings.TrimSpace(ship.Street + " " + ship.Street2)
	if street == "" {
		street = strings.TrimSpace(bill.Street + " " + bill.Street2)
	}

	observation, content := splitObservation(order)

	recipient := model.Recipient{
		Name:  truncateRunes(name, recipientNameLimit),
		Phone: truncateRunes(recipientPhone(ship.Phone, bill.Phone), phoneLimit),
		Email: bill.Email,
		Address: model.RecipientAddress{
			County:   countyName(firstNonEmpty(ship.State, bill.State)),
			Locality: city,
			Street:   street,
			ZipCode:  zip,
		},
	}
	if bill.Company != "" {
		recipient.ContactPerson = truncateRunes(contactName(order), contactPersonLimit)
	}

	return model.ShipmentPayload{
		Shipments: []model.Shipment{{
			Info: model.ShipmentInfo{
				Service:                 service,
				Packages:                model.Packages{Parcel: parcels},
				Weight:                  orderWeight(order.Items),
				COD:                     cod,
				Payment:                 "sender",
				ReturnPayment:           sender.ReturnPayment,
				DocumentType:            sender.DocumentType,
				RbsPaymentAtDestination: true,
				Observation:             observation,
				Content:                 content,
				Dimensions: model.Dimensions{
					Length: defaultPackageLength,
					Width:  defaultPackageWidth,
					Height: defaultPackageHeight,
				},
				Bank:        sender.Bank,
				BankAccount: sender.IBAN,
			},
			Recipient: recipient,
		}},
	}, nil
}

func recipientName(order *model.Order) string {
	if company := strings.TrimSpace(order.Billing.Company); company != "" {
		if cui := strings.TrimSpace(order.BillingCUI); cui != "" {
			return company + " | CUI: " + cui
		}
		return company
	}
	return contactName(order)
}

func contactName(order *model.Order) string {
	return firstNonEmpty(order.Shipping.ContactName(), order.Billing.ContactName())
}

func missingSender(s config.SenderConfig) []string {
	var m []string
	for _, f := range []struct{ name, value string }{
		{"name", s.Name},
		{"phone", s.Phone},
		{"address", s.Address},
		{"city", s.City},
		{"zip", s.Zip},
	} {
		if strings.TrimSpace(f.value) == "" {
			m = append(m, f.name)
		}
	}
	return m
}

func recipientPhone(candidates ...string) string {
	for _, c := range candidates {
		var b strings.Builder
		for _, r := range c {
			if unicode.IsDigit(r) || r == '+' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return defaultPhone
}

func countyName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = defaultCounty
	}
	if name, ok := countyNames[code]; ok {
		return name
	}
	return code
}

// orderWeight counts 1kg for items without a weight and never goes below 0.1kg.
func orderWeight(items []model.LineItem) float64 {
	var w float64
	for _, it := range items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		per := it.WeightKg
		if per <= 0 {
			per = defaultItemWeightKg
		}
		w += per * float64(qty)
	}
	if w <= 0 {
		w = defaultItemWeightKg
	}
	w = math.Round(w*100) / 100
	return math.Max(w, minWeightKg)
}

// splitObservation puts "Comanda #<order> - <products>" on the observation line and
// spills the overflow into content.
func splitObservation(order *model.Order) (observation, content string) {
	number := firstNonEmpty(order.Number, order.ID)
	full := []rune("Comanda #" + number + " - " + productList(order.Items))
	if len(full) <= observationLimit {
		return string(full), ""
	}

	observation = string(full[:observationCut]) + "..."
	rest := full[observationCut:]
	if len(rest) > observationLimit {
		return observation, string(rest[:observationCut]) + "..."
	}
	return observation, string(rest)
}

func productList(items []model.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		label := it.Name
		switch {
		case label != "":
			label = truncateRunes(label, productNameLimit)
		case it.SKU != "":
			label = it.SKU
		default:
			label = "Produs #" + it.ProductID
		}

		if attrs := attributeText(it.Attributes); attrs != "" {
			label += " " + attrs
		}
		if it.Quantity > 1 {
			label = strconv.Itoa(it.Quantity) + "x " + label
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "; ")
}

// attributeText renders "yes" flags by name, drops "no" flags and keeps the rest as key: value.
func attributeText(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		v := strings.TrimSpace(attrs[k])
		switch strings.ToLower(v) {
		case "":
			continue
		case "yes":
			out = append(out, k)
		case "no":
			continue
		default:
			out = append(out, k+": "+v)
		}
	}
	return strings.Join(out, ", ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
