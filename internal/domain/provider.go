package domain

import (
	"encoding/json"
	"strings"
)

// ProviderType selects the variant payload of a Provider.
type ProviderType string

const (
	ProviderIndividual ProviderType = "Individual"
	ProviderCorporate  ProviderType = "Corporate"
)

// ModeNone marks a provider that has not chosen a service mode yet.
const ModeNone ModeOfService = "None"

// FullName is a person's split name.
type FullName struct {
	First string `json:"first" yaml:"first"`
	Last  string `json:"last" yaml:"last"`
}

// Coordinates is a geographic point.
type Coordinates struct {
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude"`
}

// Address is a postal address shared by users and providers.
type Address struct {
	Line1       string       `json:"line1" yaml:"line1"`
	Line2       string       `json:"line2,omitempty" yaml:"line2"`
	Line3       string       `json:"line3,omitempty" yaml:"line3"`
	City        string       `json:"city,omitempty" yaml:"city"`
	State       string       `json:"state,omitempty" yaml:"state"`
	Country     string       `json:"country,omitempty" yaml:"country"`
	Pin         string       `json:"pin,omitempty" yaml:"pin"`
	Coordinates *Coordinates `json:"coordinates,omitempty" yaml:"coordinates"`
}

// ChargeType is how a rate is billed.
type ChargeType string

const (
	ChargeHourly    ChargeType = "Hourly"
	ChargePerTicket ChargeType = "Per Ticket"
)

// RateCard prices one skill.
type RateCard struct {
	Skill      string     `json:"skill" yaml:"skill"`
	ChargeType ChargeType `json:"chargeType" yaml:"chargeType"`
	Rate       *float64   `json:"rate,omitempty" yaml:"rate"`
}

// Review is customer feedback on a provider.
type Review struct {
	Rating   *float64 `json:"rating,omitempty" yaml:"rating"`
	Comment  string   `json:"comment,omitempty" yaml:"comment"`
	PostedBy string   `json:"postedBy" yaml:"postedBy"`
}

// ProviderBase holds the fields every provider has.
type ProviderBase struct {
	ID                  string        `json:"_id" yaml:"id"`
	FullName            FullName      `json:"fullName" yaml:"fullName"`
	Email               string        `json:"email,omitempty" yaml:"email"`
	Mobile              string        `json:"mobile" yaml:"mobile"`
	PrimarySkill        string        `json:"primarySkill" yaml:"primarySkill"`
	SecondarySkills     []string      `json:"secondarySkills" yaml:"secondarySkills"`
	Description         string        `json:"description,omitempty" yaml:"description"`
	ModeOfService       ModeOfService `json:"modeOfService" yaml:"modeOfService"`
	RateCard            []RateCard    `json:"rateCard" yaml:"rateCard"`
	BrandsServiced      []string      `json:"brandsServiced" yaml:"brandsServiced"`
	Address             *Address      `json:"address,omitempty" yaml:"address"`
	YOE                 int           `json:"yoe" yaml:"yoe"`
	Reviews             []Review      `json:"reviews" yaml:"reviews"`
	LanguagePreferences []string      `json:"language_preferences,omitempty" yaml:"languagePreferences"`
	Type                ProviderType  `json:"type" yaml:"type"`
}

// Certificate is an uploaded qualification.
type Certificate struct {
	Name    string `json:"name,omitempty" yaml:"name"`
	FileURL string `json:"fileUrl,omitempty" yaml:"fileUrl"`
}

// IDProof is a government identity document.
type IDProof struct {
	Type     string `json:"type" yaml:"type"`
	IDNumber string `json:"idNumber,omitempty" yaml:"idNumber"`
	Status   string `json:"status,omitempty" yaml:"status"`
}

// IndividualProfile is the payload of an Individual provider.
type IndividualProfile struct {
	DOB            string        `json:"dob,omitempty" yaml:"dob"`
	Gender         string        `json:"gender,omitempty" yaml:"gender"`
	Qualifications []Certificate `json:"qualifications,omitempty" yaml:"qualifications"`
	IDProof        *IDProof      `json:"idProof,omitempty" yaml:"idProof"`
}

// CorporateProfile is the payload of a Corporate provider.
type CorporateProfile struct {
	CompanyName string `json:"companyName" yaml:"companyName"`
	GSTIN       string `json:"GSTIN,omitempty" yaml:"gstin"`
	CIN         string `json:"CIN,omitempty" yaml:"cin"`
	IsVerified  bool   `json:"isVerified" yaml:"isVerified"`
	TeamSize    int    `json:"teamSize,omitempty" yaml:"teamSize"`
}

// Provider is a service provider ("geek"). Type selects which payload is set.
type Provider struct {
	ProviderBase `yaml:",inline"`
	Individual   *IndividualProfile `json:"-" yaml:"individual,omitempty"`
	Corporate    *CorporateProfile  `json:"-" yaml:"corporate,omitempty"`
}

// providerWire flattens the variant payload into the base object on the wire.
type providerWire struct {
	ProviderBase
	*IndividualProfile
	*CorporateProfile
}

func (p Provider) wire() providerWire {
	return providerWire{ProviderBase: p.ProviderBase, IndividualProfile: p.Individual, CorporateProfile: p.Corporate}
}

// MarshalJSON writes the base and the active payload as one object.
func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.wire())
}

// UnmarshalJSON reads a flattened provider object.
func (p *Provider) UnmarshalJSON(data []byte) error {
	var w providerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.ProviderBase = w.ProviderBase
	p.Individual = w.IndividualProfile
	p.Corporate = w.CorporateProfile
	return nil
}

// Validate checks that the payload agrees with the type tag.
func (p *Provider) Validate() error {
	var v validator
	if p.ID == "" {
		v.add("_id", "is required")
	}
	if p.PrimarySkill == "" {
		v.add("primarySkill", "is required")
	}
	switch p.Type {
	case ProviderIndividual:
		if p.Corporate != nil {
			v.add("type", "Individual provider carries corporate details")
		}
	case ProviderCorporate:
		if p.Individual != nil {
			v.add("type", "Corporate provider carries individual details")
		}
		if p.Corporate == nil || strings.TrimSpace(p.Corporate.CompanyName) == "" {
			v.add("companyName", "is required for Corporate providers")
		}
	default:
		v.add("type", "must be Individual or Corporate")
	}
	switch p.ModeOfService {
	case ModeOnline, ModeOffline, ModeCarryIn, ModeAll, ModeNone, "":
	default:
		v.add("modeOfService", "is not a known mode")
	}
	return v.err()
}

// IsVerified reports the corporate verification flag. Individuals are never verified.
func (p *Provider) IsVerified() bool {
	return p.Corporate != nil && p.Corporate.IsVerified
}

// MatchedProvider is a Provider annotated with resolved skill names.
type MatchedProvider struct {
	Provider
	PrimarySkillName     string
	SecondarySkillsNames []string
}

type matchedWire struct {
	providerWire
	PrimarySkillName     string   `json:"primarySkillName"`
	SecondarySkillsNames []string `json:"secondarySkillsNames"`
}

// MarshalJSON includes the resolved skill names alongside the provider fields.
func (m MatchedProvider) MarshalJSON() ([]byte, error) {
	names := m.SecondarySkillsNames
	if names == nil {
		names = []string{}
	}
	return json.Marshal(matchedWire{
		providerWire:         m.Provider.wire(),
		PrimarySkillName:     m.PrimarySkillName,
		SecondarySkillsNames: names,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *MatchedProvider) UnmarshalJSON(data []byte) error {
	var w matchedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ProviderBase = w.ProviderBase
	m.Individual = w.IndividualProfile
	m.Corporate = w.CorporateProfile
	m.PrimarySkillName = w.PrimarySkillName
	m.SecondarySkillsNames = w.SecondarySkillsNames
	return nil
}

// MatchResult is one page of providers matched to an issue.
type MatchResult struct {
	Geeks []MatchedProvider `json:"geeks"`
	Total int               `json:"total"`
	Limit int               `json:"limit"`
	Page  int               `json:"page"`
	Pages int               `json:"pages"`
	Issue IssueRecord       `json:"user_issue"`
}
