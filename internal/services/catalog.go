package services

import (
	"fmt"
	"time"

	"github.com/vikasavnish/savepad/internal/models"
)

// Offer is one entry of the plan catalog.
type Offer struct {
	Type  string
	Mode  string
	Title string
	Price float64 // one-off and monthly price, BRL
	Days  int     // validity of a one-off payment
}

var catalog = map[string]Offer{
	models.ModeIndividual: {
		Type:  models.ModeIndividual,
		Mode:  models.ModeIndividual,
		Title: "Plano Individual SavePad",
		Price: 15,
		Days:  30,
	},
	models.ModeFamiliar: {
		Type:  models.ModeFamiliar,
		Mode:  models.ModeFamiliar,
		Title: "Plano Familiar SavePad",
		Price: 30,
		Days:  60,
	},
}

// Quote is the price and duration the provider checkout is built from.
type Quote struct {
	Offer
	Cadence       string
	Amount        float64
	Frequency     int    // recurring only
	FrequencyType string // recurring only
}

// ExpiresAt returns the expiry of a one-off plan paid at now. Recurring
// plans have none.
func (q Quote) ExpiresAt(now time.Time) *time.Time {
	if q.Cadence != models.CadenceOnce {
		return nil
	}
	t := now.AddDate(0, 0, q.Days)
	return &t
}

// LookupOffer returns the catalog entry for a plan type.
func LookupOffer(planType string) (Offer, bool) {
	o, ok := catalog[planType]
	return o, ok
}

// QuotePlan prices planType for the given cadence.
func QuotePlan(planType, cadence string) (Quote, error) {
	offer, ok := LookupOffer(planType)
	if !ok {
		return Quote{}, fmt.Errorf("unknown plan type %q", planType)
	}

	q := Quote{Offer: offer, Cadence: cadence}
	switch cadence {
	case models.CadenceOnce:
		q.Amount = offer.Price
	case models.CadenceMonthly:
		q.Amount = offer.Price
		q.Frequency = 1
		q.FrequencyType = "months"
	case models.CadenceYearly:
		q.Amount = offer.Price * 10
		q.Frequency = 12
		q.FrequencyType = "months"
	default:
		return Quote{}, fmt.Errorf("unknown cadence %q", cadence)
	}
	return q, nil
}
