// Package stage defines the fixed, ordered commercial pipeline an associate
// moves through. The order is defined once and never changes at runtime.
package stage

import (
	"errors"
	"fmt"
)

// Stage is one step of the pipeline. Its value is the display text used by
// the upstream associate data.
type Stage string

const (
	Prospect            Stage = "Prospecto"
	DossierInProgress   Stage = "Expediente en Construcción"
	PendingLegal        Stage = "Pendiente Jurídico"
	PendingCreditClose  Stage = "Pendiente Cierre de Crédito"
	PendingSignature    Stage = "Pendiente Firma y Litivo"
	PendingLawyerReview Stage = "Pendiente Revisión Abogado"
	ActivePortfolio     Stage = "Cartera Activa"
	Disbursed           Stage = "Desembolsado/Finalizado"
)

// ErrUnknown is returned by Parse for values outside the pipeline.
var ErrUnknown = errors.New("stage: unknown stage")

var order = [...]Stage{
	Prospect,
	DossierInProgress,
	PendingLegal,
	PendingCreditClose,
	PendingSignature,
	PendingLawyerReview,
	ActivePortfolio,
	Disbursed,
}

var codes = map[Stage]string{
	Prospect:            "PROSPECT",
	DossierInProgress:   "DOSSIER_IN_PROGRESS",
	PendingLegal:        "PENDING_LEGAL",
	PendingCreditClose:  "PENDING_CREDIT_CLOSE",
	PendingSignature:    "PENDING_SIGNATURE",
	PendingLawyerReview: "PENDING_LAWYER_REVIEW",
	ActivePortfolio:     "ACTIVE_PORTFOLIO",
	Disbursed:           "DISBURSED",
}

var indexByValue = buildIndex()

func buildIndex() map[string]int {
	idx := make(map[string]int, len(order))
	for i, s := range order {
		idx[string(s)] = i
	}
	return idx
}

// Count is the number of stages in the pipeline.
const Count = len(order)

// Ordered returns the pipeline stages in order. The returned slice is a copy.
func Ordered() []Stage {
	out := make([]Stage, len(order))
	copy(out, order[:])
	return out
}

// IndexOf reports the position of value in the pipeline. The boolean is false
// when value is not one of the known stages.
func IndexOf(value string) (int, bool) {
	i, ok := indexByValue[value]
	return i, ok
}

// IsValid reports whether value is one of the known stages.
func IsValid(value string) bool {
	_, ok := indexByValue[value]
	return ok
}

// Next returns the stage immediately after value. It returns false when value
// is terminal or unknown.
func Next(value string) (Stage, bool) {
	i, ok := indexByValue[value]
	if !ok || i+1 >= len(order) {
		return "", false
	}
	return order[i+1], true
}

// At returns the stage at position i.
func At(i int) (Stage, bool) {
	if i < 0 || i >= len(order) {
		return "", false
	}
	return order[i], true
}

// Parse converts value into a Stage.
func Parse(value string) (Stage, error) {
	if !IsValid(value) {
		return "", fmt.Errorf("%w: %q", ErrUnknown, value)
	}
	return Stage(value), nil
}

// Code returns the symbolic code for s, or an empty string for unknown values.
func (s Stage) Code() string {
	return codes[s]
}

// Terminal reports whether s is the last stage of the pipeline.
func (s Stage) Terminal() bool {
	return s == order[len(order)-1]
}

func (s Stage) String() string {
	return string(s)
}
