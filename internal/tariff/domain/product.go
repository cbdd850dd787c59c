package tariff

import (
	"html"
	"strings"
	"time"
)

// Product describes the tariff product offered by the supplier.
type Product struct {
	Code            string     `json:"code"`
	FullName        string     `json:"full_name"`
	DisplayName     string     `json:"display_name"`
	Description     string     `json:"description"`
	IsVariable      bool       `json:"is_variable"`
	IsGreen         bool       `json:"is_green"`
	IsTracker       bool       `json:"is_tracker"`
	IsPrepay        bool       `json:"is_prepay"`
	IsBusiness      bool       `json:"is_business"`
	IsRestricted    bool       `json:"is_restricted"`
	TermMonths      int        `json:"term_months,omitempty"`
	AvailableFrom   *time.Time `json:"available_from,omitempty"`
	AvailableTo     *time.Time `json:"available_to,omitempty"`
	TariffsActiveAt *time.Time `json:"tariffs_active_at,omitempty"`
}

// StandingCharge is the daily fixed charge in pence.
type StandingCharge struct {
	IncVATPencePerDay float64    `json:"inc_vat_p_per_day"`
	ExcVATPencePerDay float64    `json:"exc_vat_p_per_day"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidTo           *time.Time `json:"valid_to,omitempty"`
}

// PoundsPerDay converts the inc-VAT charge to major currency.
func (s StandingCharge) PoundsPerDay() float64 {
	return s.IncVATPencePerDay / 100
}

// ActiveAt reports whether the charge applies at t.
func (s StandingCharge) ActiveAt(t time.Time) bool {
	if s.ValidFrom != nil && t.Before(*s.ValidFrom) {
		return false
	}
	if s.ValidTo != nil && !t.Before(*s.ValidTo) {
		return false
	}
	return true
}

// Metadata is the non-essential descriptive information for a tariff.
type Metadata struct {
	TariffCode     string          `json:"tariff_code"`
	RegionLabel    string          `json:"region_label,omitempty"`
	Product        *Product        `json:"product,omitempty"`
	StandingCharge *StandingCharge `json:"standing_charge,omitempty"`
}

var descriptionReplacer = strings.NewReplacer(
	"<li>", "• ",
	"</li>", "\n",
	"<br>", "\n",
	"<br/>", "\n",
	"<p>", "",
	"</p>", "\n",
	"<ul>", "",
	"</ul>", "",
)

// CleanDescription turns the supplier's HTML blurb into plain text.
func CleanDescription(raw string) string {
	return strings.TrimSpace(html.UnescapeString(descriptionReplacer.Replace(raw)))
}
