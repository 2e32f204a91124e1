// Package mapper implements the Domain Mapper: routing raw records by
// data type and category, then validating/coercing them against the
// typed schemas of internal/model, dropping invalid records as
// mapping warnings rather than failing the run.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"civicpipe/internal/config"
	"civicpipe/internal/model"
)

// CampaignFinanceKind selects the campaign_finance sub-schema a record
// routes to.
type CampaignFinanceKind string

const (
	KindCommittee               CampaignFinanceKind = "committee"
	KindIndependentExpenditure  CampaignFinanceKind = "independent_expenditure"
	KindExpenditure             CampaignFinanceKind = "expenditure"
	KindContribution            CampaignFinanceKind = "contribution"
)

// RouteCampaignFinance applies the §4.9 case-insensitive substring
// ordering: committee, then independent/s496, then expenditure, then
// contribution, defaulting to contribution.
func RouteCampaignFinance(category string) CampaignFinanceKind {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "committee"):
		return KindCommittee
	case strings.Contains(lower, "independent") || strings.Contains(lower, "s496"):
		return KindIndependentExpenditure
	case strings.Contains(lower, "expenditure"):
		return KindExpenditure
	case strings.Contains(lower, "contribution"):
		return KindContribution
	default:
		return KindContribution
	}
}

// sourceSystemFromCategory infers sourceSystem per §4.9 when the raw
// record doesn't already carry one.
func sourceSystemFromCategory(category string) model.SourceSystem {
	lower := strings.ToLower(category)
	switch {
	case strings.HasPrefix(lower, "cal-access"), strings.HasPrefix(lower, "cal_access"):
		return model.SourceCalAccess
	case strings.HasPrefix(lower, "fec"):
		return model.SourceFEC
	default:
		return ""
	}
}

// enrich applies the light enrichment pass of §4.9 step 1, mutating a
// copy of raw in place.
func enrich(raw map[string]any, source config.DataSourceConfig) map[string]any {
	out := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		out[k] = v
	}

	if !truthy(out["body"]) {
		if source.Category != "" {
			out["body"] = source.Category
		} else {
			out["body"] = "Unknown"
		}
	}
	if !truthy(out["chamber"]) && source.Category != "" {
		out["chamber"] = source.Category
	}
	if !truthy(out["donorName"]) {
		first, _ := out["donorFirstName"].(string)
		last, _ := out["donorLastName"].(string)
		if first != "" || last != "" {
			out["donorName"] = strings.TrimSpace(first + " " + last)
		}
	}
	if !truthy(out["sourceSystem"]) {
		if ss := sourceSystemFromCategory(source.Category); ss != "" {
			out["sourceSystem"] = string(ss)
		}
	}

	return out
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func str(raw map[string]any, field string) string {
	v, ok := raw[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func number(raw map[string]any, field string) (float64, bool) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		cleaned := strings.ReplaceAll(strings.ReplaceAll(n, "$", ""), ",", "")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceDate(raw map[string]any, field string) (time.Time, bool) {
	v := str(raw, field)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func coerceDonorType(raw string) model.DonorType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IND":
		return model.DonorIndividual
	case "COM":
		return model.DonorCommittee
	case "PTY":
		return model.DonorParty
	case "SCC":
		return model.DonorIndividual
	case "OTH":
		return model.DonorOther
	default:
		lower := strings.ToLower(strings.TrimSpace(raw))
		switch lower {
		case "individual":
			return model.DonorIndividual
		case "committee":
			return model.DonorCommittee
		case "party":
			return model.DonorParty
		case "other":
			return model.DonorOther
		}
		return model.DonorOther
	}
}

func coerceSupportOrOppose(raw string) (model.SupportOrOppose, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "S", "SUPPORT":
		return model.Support, true
	case "O", "OPPOSE":
		return model.Oppose, true
	default:
		return "", false
	}
}

// MapResult is the aggregated outcome of mapping a RawExtractionResult
// to a typed slice, carrying forward the raw warnings/errors plus any
// per-record mapping warnings the typed coercion produced.
type MapResult[T any] struct {
	Items    []T
	Warnings []string
	Errors   []string
}

// Map routes raw.Items by source.DataType (and, for campaign_finance,
// by source.Category) to the matching typed schema, dropping records
// that fail coercion as mapping warnings rather than failing the run.
func Map(raw model.RawExtractionResult, source config.DataSourceConfig) MapResult[any] {
	warnings := append([]string{}, raw.Warnings...)

	var items []any
	for i, rec := range raw.Items {
		enriched := enrich(rec, source)
		mapped, warn := mapOne(enriched, source)
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("record %d: %s", i, warn))
			continue
		}
		items = append(items, mapped)
	}

	return MapResult[any]{
		Items:    items,
		Warnings: warnings,
		Errors:   append([]string{}, raw.Errors...),
	}
}

func mapOne(rec map[string]any, source config.DataSourceConfig) (any, string) {
	externalID := str(rec, "externalId")
	if externalID == "" {
		return nil, "missing required field externalId"
	}

	switch source.DataType {
	case config.DataTypePropositions:
		return mapProposition(rec, externalID)
	case config.DataTypeMeetings:
		return mapMeeting(rec, externalID)
	case config.DataTypeRepresentatives:
		return mapRepresentative(rec, externalID)
	case config.DataTypeCampaignFinance:
		return mapCampaignFinance(rec, externalID, source.Category)
	default:
		return nil, fmt.Sprintf("unknown dataType %q", source.DataType)
	}
}

func mapProposition(rec map[string]any, externalID string) (any, string) {
	title := str(rec, "title")
	if title == "" {
		return nil, "missing required field title"
	}
	summary := str(rec, "summary")
	if summary == "" {
		summary = title
	}

	status := model.PropositionStatus(strings.ToLower(str(rec, "status")))
	switch status {
	case model.PropositionPending, model.PropositionPassed, model.PropositionFailed,
		model.PropositionQualified, model.PropositionWithdrawn:
	default:
		status = model.PropositionPending
	}

	var electionDate *time.Time
	if t, ok := coerceDate(rec, "electionDate"); ok {
		electionDate = &t
	}

	return model.Proposition{
		ExternalID:   externalID,
		Title:        title,
		Summary:      summary,
		FullText:     str(rec, "fullText"),
		Status:       status,
		ElectionDate: electionDate,
		SourceURL:    str(rec, "sourceUrl"),
	}, ""
}

func mapMeeting(rec map[string]any, externalID string) (any, string) {
	title := str(rec, "title")
	if title == "" {
		return nil, "missing required field title"
	}
	body := str(rec, "body")
	if body == "" {
		body = "Unknown"
	}
	scheduledAt, ok := coerceDate(rec, "scheduledAt")
	if !ok {
		return nil, "missing or unparseable scheduledAt"
	}

	return model.Meeting{
		ExternalID:  externalID,
		Title:       title,
		Body:        body,
		ScheduledAt: scheduledAt,
		Location:    str(rec, "location"),
		AgendaURL:   str(rec, "agendaUrl"),
		VideoURL:    str(rec, "videoUrl"),
	}, ""
}

func mapRepresentative(rec map[string]any, externalID string) (any, string) {
	name := str(rec, "name")
	if name == "" {
		return nil, "missing required field name"
	}

	var contact *model.ContactInfo
	email, phone, address, website := str(rec, "email"), str(rec, "phone"), str(rec, "address"), str(rec, "website")
	if email != "" || phone != "" || address != "" || website != "" {
		contact = &model.ContactInfo{Email: email, Phone: phone, Address: address, Website: website}
	}

	return model.Representative{
		ExternalID:  externalID,
		Name:        name,
		Chamber:     str(rec, "chamber"),
		District:    str(rec, "district"),
		Party:       str(rec, "party"),
		PhotoURL:    str(rec, "photoUrl"),
		ContactInfo: contact,
	}, ""
}

func mapCampaignFinance(rec map[string]any, externalID string, category string) (any, string) {
	sourceSystem := model.SourceSystem(str(rec, "sourceSystem"))

	switch RouteCampaignFinance(category) {
	case KindCommittee:
		name := str(rec, "name")
		if name == "" {
			return nil, "missing required field name"
		}
		status := model.CommitteeStatus(strings.ToLower(str(rec, "status")))
		if status != model.CommitteeActive && status != model.CommitteeTerminated {
			status = model.CommitteeActive
		}
		return model.Committee{
			ExternalID:      externalID,
			Name:            name,
			Type:            str(rec, "type"),
			CandidateName:   str(rec, "candidateName"),
			CandidateOffice: str(rec, "candidateOffice"),
			PropositionID:   str(rec, "propositionId"),
			Party:           str(rec, "party"),
			Status:          status,
			SourceSystem:    sourceSystem,
		}, ""

	case KindIndependentExpenditure:
		amount, ok := number(rec, "amount")
		if !ok {
			return nil, "missing or unparseable amount"
		}
		date, ok := coerceDate(rec, "date")
		if !ok {
			return nil, "missing or unparseable date"
		}
		stance, ok := coerceSupportOrOppose(str(rec, "supportOrOppose"))
		if !ok {
			return nil, "missing or unrecognized supportOrOppose"
		}
		return model.IndependentExpenditure{
			ExternalID:       externalID,
			CommitteeID:      str(rec, "committeeId"),
			PayeeName:        str(rec, "payeeName"),
			CandidateName:    str(rec, "candidateName"),
			PropositionTitle: str(rec, "propositionTitle"),
			Amount:           amount,
			Date:             date,
			SupportOrOppose:  stance,
			SourceSystem:     sourceSystem,
		}, ""

	case KindExpenditure:
		amount, ok := number(rec, "amount")
		if !ok {
			return nil, "missing or unparseable amount"
		}
		date, ok := coerceDate(rec, "date")
		if !ok {
			return nil, "missing or unparseable date"
		}
		return model.Expenditure{
			ExternalID:       externalID,
			CommitteeID:      str(rec, "committeeId"),
			PayeeName:        str(rec, "payeeName"),
			CandidateName:    str(rec, "candidateName"),
			PropositionTitle: str(rec, "propositionTitle"),
			Amount:           amount,
			Date:             date,
			SourceSystem:     sourceSystem,
		}, ""

	default: // KindContribution
		donorName := str(rec, "donorName")
		if donorName == "" {
			return nil, "missing required field donorName"
		}
		amount, ok := number(rec, "amount")
		if !ok {
			return nil, "missing or unparseable amount"
		}
		date, ok := coerceDate(rec, "date")
		if !ok {
			return nil, "missing or unparseable date"
		}
		return model.Contribution{
			ExternalID:   externalID,
			CommitteeID:  str(rec, "committeeId"),
			DonorName:    donorName,
			DonorType:    coerceDonorType(str(rec, "donorType")),
			Amount:       amount,
			Date:         date,
			Address:      str(rec, "address"),
			Employer:     str(rec, "employer"),
			Occupation:   str(rec, "occupation"),
			SourceSystem: sourceSystem,
		}, ""
	}
}
