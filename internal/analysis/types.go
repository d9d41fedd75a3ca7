package analysis

// DocumentType is the classified category of an analyzed document.
type DocumentType string

const (
	TypeRentalAgreement    DocumentType = "rental_agreement"
	TypeEmploymentContract DocumentType = "employment_contract"
	TypeLoanAgreement      DocumentType = "loan_agreement"
	TypeTermsOfService     DocumentType = "terms_of_service"
	TypePrivacyPolicy      DocumentType = "privacy_policy"
	TypePurchaseAgreement  DocumentType = "purchase_agreement"
	TypeOther              DocumentType = "other"
)

// ClauseType categorizes an identified legal clause.
type ClauseType string

const (
	ClausePaymentTerms         ClauseType = "payment_terms"
	ClauseTermination          ClauseType = "termination"
	ClauseLiability            ClauseType = "liability"
	ClausePrivacy              ClauseType = "privacy"
	ClauseIndemnification      ClauseType = "indemnification"
	ClauseDisputeResolution    ClauseType = "dispute_resolution"
	ClauseIntellectualProperty ClauseType = "intellectual_property"
	ClauseConfidentiality      ClauseType = "confidentiality"
	ClauseForceMajeure         ClauseType = "force_majeure"
	ClauseGoverningLaw         ClauseType = "governing_law"
	ClauseAmendment            ClauseType = "amendment"
	ClauseSeverability         ClauseType = "severability"
	ClauseOther                ClauseType = "other"
)

// Clause is one identified legal clause with its plain-language
// simplification and risk assessment.
type Clause struct {
	ID              string     `json:"id"`
	Type            ClauseType `json:"type"`
	OriginalText    string     `json:"original_text"`
	SimplifiedText  string     `json:"simplified_text"`
	RiskScore       float64    `json:"risk_score"`
	Explanation     string     `json:"explanation"`
	Recommendations []string   `json:"recommendations"`
}

// RiskCategory is the aggregated risk for one clause category.
type RiskCategory struct {
	Category    string  `json:"category"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
	ClauseCount int     `json:"clauses_count"`
}

// Stats captures processing metadata for a completed analysis.
type Stats struct {
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	TotalPages            int     `json:"total_pages"`
	TotalWords            int     `json:"total_words"`
	TotalChunks           int     `json:"total_chunks"`
	ClausesFound          int     `json:"clauses_found"`
	FailedChunks          int     `json:"failed_chunks"`
}

// Enhancement holds the optional second-phase expert outputs. Fields are
// only ever added to a stored result, never removed, so readers can treat
// the payload as monotonically growing.
type Enhancement struct {
	LegalPrecedentResearch string   `json:"legal_precedent_research,omitempty"`
	ConsumerRightsAnalysis string   `json:"consumer_rights_analysis,omitempty"`
	ComplianceAssessment   string   `json:"compliance_assessment,omitempty"`
	NegotiationGuidance    string   `json:"negotiation_guidance,omitempty"`
	AlternativesResearch   string   `json:"alternatives_research,omitempty"`
	Enhanced               bool     `json:"enhanced"`
	AgentsUsed             []string `json:"agents_used"`
	TimeSeconds            float64  `json:"enhancement_time_seconds"`
}

// Result is the output of a completed analysis. Slice fields are never
// nil so the JSON projection always carries arrays. A Result is treated
// as immutable once published to the job store; the enhancement merge
// replaces the whole value rather than mutating in place.
type Result struct {
	DocumentID       string         `json:"document_id"`
	DocumentType     DocumentType   `json:"document_type"`
	OverallRiskScore float64        `json:"overall_risk_score"`
	RiskCategories   []RiskCategory `json:"risk_categories"`
	KeyClauses       []Clause       `json:"key_clauses"`
	RedFlags         []string       `json:"red_flags"`
	Recommendations  []string       `json:"recommendations"`
	Stats            Stats          `json:"processing_stats"`
	Enhancement      *Enhancement   `json:"enhancement,omitempty"`
}

// WithEnhancement returns a copy of the result carrying the enhancement.
// The receiver is left untouched so previously served snapshots stay valid.
func (r *Result) WithEnhancement(enh *Enhancement) *Result {
	out := *r
	out.Enhancement = enh
	return &out
}
