package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// PartyKind tags a party reference.
type PartyKind string

const (
	PartySchool  PartyKind = "SCHOOL"
	PartyCompany PartyKind = "COMPANY"
)

// PartyRef points at a school or a company.
type PartyRef struct {
	Kind PartyKind `json:"kind"`
	ID   int64     `json:"id"`
}

// NewParty builds a PartyRef from raw values.
func NewParty(kind string, id int64) (PartyRef, error) {
	p := PartyRef{Kind: PartyKind(strings.ToUpper(strings.TrimSpace(kind))), ID: id}
	if err := p.Validate(); err != nil {
		return PartyRef{}, err
	}
	return p, nil
}

// Validate checks the tag and the id.
func (p PartyRef) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidParty
	}
	switch p.Kind {
	case PartySchool, PartyCompany:
		return nil
	}
	return ErrInvalidParty
}

// IsZero reports an unset reference.
func (p PartyRef) IsZero() bool {
	return p.Kind == "" && p.ID == 0
}

// Receivable reports whether the ledger tracks money owed to the business.
// Schools are receivable, companies (dealers) payable.
func (p PartyRef) Receivable() bool {
	return p.Kind == PartySchool
}

func (p PartyRef) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, strconv.FormatInt(p.ID, 10))
}
