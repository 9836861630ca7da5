package source

import (
	"associateflow/associate"
	"associateflow/stage"
)

// Fixtures returns the demonstration associates. They are only loaded when a
// caller asks for them explicitly.
func Fixtures() []associate.Record {
	return []associate.Record{
		{ID: "1", Name: "Juan Perez", IdentificationCode: "123456", Stage: string(stage.Prospect)},
		{ID: "2", Name: "Maria Gomez", IdentificationCode: "987654", Stage: string(stage.PendingLegal), ContributionPaid: true},
		{ID: "3", Name: "Carlos Ruiz", IdentificationCode: "456123", Stage: string(stage.DossierInProgress)},
		{ID: "4", Name: "Ana Lopez", IdentificationCode: "789123", Stage: string(stage.PendingCreditClose), ContributionPaid: true},
		{ID: "5", Name: "Pedro Diaz", IdentificationCode: "321654", Stage: string(stage.DossierInProgress), ContributionPaid: true},
	}
}
