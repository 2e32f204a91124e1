package model

import "time"

// RawExtractionResult is the string-keyed output of the Manifest
// Extractor (or the bulk/API handlers), prior to Domain Mapper
// validation and coercion.
type RawExtractionResult struct {
	Items    []map[string]any `json:"items"`
	Success  bool             `json:"success"`
	Warnings []string         `json:"warnings"`
	Errors   []string         `json:"errors"`
}

// ExtractionResult is the pipeline's final, typed output for one
// invocation.
type ExtractionResult[T any] struct {
	Items            []T      `json:"items"`
	ManifestVersion  int      `json:"manifestVersion"`
	Success          bool     `json:"success"`
	Warnings         []string `json:"warnings"`
	Errors           []string `json:"errors"`
	ExtractionTimeMs int64    `json:"extractionTimeMs"`
}

// PropositionStatus enumerates the allowed Proposition.Status values.
type PropositionStatus string

const (
	PropositionPending    PropositionStatus = "pending"
	PropositionPassed     PropositionStatus = "passed"
	PropositionFailed     PropositionStatus = "failed"
	PropositionQualified  PropositionStatus = "qualified"
	PropositionWithdrawn  PropositionStatus = "withdrawn"
)

// Proposition is a ballot measure / initiative record.
type Proposition struct {
	ExternalID   string             `json:"externalId"`
	Title        string             `json:"title"`
	Summary      string             `json:"summary"`
	FullText     string             `json:"fullText,omitempty"`
	Status       PropositionStatus  `json:"status"`
	ElectionDate *time.Time         `json:"electionDate,omitempty"`
	SourceURL    string             `json:"sourceUrl,omitempty"`
}

// Meeting is a public-body meeting record.
type Meeting struct {
	ExternalID  string    `json:"externalId"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Location    string    `json:"location,omitempty"`
	AgendaURL   string    `json:"agendaUrl,omitempty"`
	VideoURL    string    `json:"videoUrl,omitempty"`
}

// ContactInfo is a representative's optional contact block.
type ContactInfo struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Website string `json:"website,omitempty"`
}

// Representative is an elected-official record.
type Representative struct {
	ExternalID  string       `json:"externalId"`
	Name        string       `json:"name"`
	Chamber     string       `json:"chamber"`
	District    string       `json:"district"`
	Party       string       `json:"party"`
	PhotoURL    string       `json:"photoUrl,omitempty"`
	ContactInfo *ContactInfo `json:"contactInfo,omitempty"`
}

// SourceSystem attributes a campaign-finance record to the filing
// system it was derived from.
type SourceSystem string

const (
	SourceCalAccess SourceSystem = "cal_access"
	SourceFEC       SourceSystem = "fec"
)

// CommitteeStatus enumerates the allowed Committee.Status values.
type CommitteeStatus string

const (
	CommitteeActive     CommitteeStatus = "active"
	CommitteeTerminated CommitteeStatus = "terminated"
)

// Committee is a campaign-finance committee record.
type Committee struct {
	ExternalID       string          `json:"externalId"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	CandidateName    string          `json:"candidateName,omitempty"`
	CandidateOffice  string          `json:"candidateOffice,omitempty"`
	PropositionID    string          `json:"propositionId,omitempty"`
	Party            string          `json:"party,omitempty"`
	Status           CommitteeStatus `json:"status"`
	SourceSystem     SourceSystem    `json:"sourceSystem"`
}

// DonorType enumerates the coerced Contribution.DonorType values.
type DonorType string

const (
	DonorIndividual DonorType = "individual"
	DonorCommittee  DonorType = "committee"
	DonorParty      DonorType = "party"
	DonorOther      DonorType = "other"
)

// Contribution is a campaign contribution record.
type Contribution struct {
	ExternalID   string       `json:"externalId"`
	CommitteeID  string       `json:"committeeId"`
	DonorName    string       `json:"donorName"`
	DonorType    DonorType    `json:"donorType"`
	Amount       float64      `json:"amount"`
	Date         time.Time    `json:"date"`
	Address      string       `json:"address,omitempty"`
	Employer     string       `json:"employer,omitempty"`
	Occupation   string       `json:"occupation,omitempty"`
	SourceSystem SourceSystem `json:"sourceSystem"`
}

// SupportOrOppose enumerates the coerced stance of an expenditure.
type SupportOrOppose string

const (
	Support SupportOrOppose = "support"
	Oppose  SupportOrOppose = "oppose"
)

// Expenditure is a campaign expenditure record.
type Expenditure struct {
	ExternalID      string       `json:"externalId"`
	CommitteeID     string       `json:"committeeId"`
	PayeeName       string       `json:"payeeName"`
	CandidateName   string       `json:"candidateName,omitempty"`
	PropositionTitle string      `json:"propositionTitle,omitempty"`
	Amount          float64      `json:"amount"`
	Date            time.Time    `json:"date"`
	SourceSystem    SourceSystem `json:"sourceSystem"`
}

// IndependentExpenditure is a campaign independent-expenditure record
// (spending not coordinated with a candidate/committee), which
// additionally carries a support/oppose stance.
type IndependentExpenditure struct {
	ExternalID       string          `json:"externalId"`
	CommitteeID      string          `json:"committeeId"`
	PayeeName        string          `json:"payeeName,omitempty"`
	CandidateName    string          `json:"candidateName,omitempty"`
	PropositionTitle string          `json:"propositionTitle,omitempty"`
	Amount           float64         `json:"amount"`
	Date             time.Time       `json:"date"`
	SupportOrOppose  SupportOrOppose `json:"supportOrOppose"`
	SourceSystem     SourceSystem    `json:"sourceSystem"`
}
