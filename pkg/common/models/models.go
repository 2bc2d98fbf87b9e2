package models

import (
	"time"
)

// Cohort definition
type CriteriaType string

const (
	CriteriaDemo     CriteriaType = "DEMO"
	CriteriaICD9     CriteriaType = "ICD9"
	CriteriaICD10    CriteriaType = "ICD10"
	CriteriaPhecode  CriteriaType = "PHECODE"
	CriteriaCPT      CriteriaType = "CPT"
	CriteriaMeds     CriteriaType = "MEDS"
	CriteriaLabs     CriteriaType = "LABS"
	CriteriaVitals   CriteriaType = "VITALS"
	CriteriaTemporal CriteriaType = "TEMPORAL"
)

type ModifierType string

const (
	ModifierAgeAtEvent       ModifierType = "AGE_AT_EVENT"
	ModifierEventDate        ModifierType = "EVENT_DATE"
	ModifierEncounters       ModifierType = "ENCOUNTERS"
	ModifierNumOfOccurrences ModifierType = "NUM_OF_OCCURRENCES"
	ModifierCATI             ModifierType = "CATI"
)

type Operator string

const (
	OperatorAny                  Operator = "ANY"
	OperatorGreaterThanOrEqualTo Operator = "GREATER_THAN_OR_EQUAL_TO"
	OperatorLessThanOrEqualTo    Operator = "LESS_THAN_OR_EQUAL_TO"
	OperatorBetween              Operator = "BETWEEN"
	OperatorIn                   Operator = "IN"
	OperatorWithinDays           Operator = "WITHIN_DAYS"
	OperatorWithinYears          Operator = "WITHIN_YEARS"
	OperatorApartDays            Operator = "APART_DAYS"
	OperatorApartYears           Operator = "APART_YEARS"
)

type Role string

const (
	RoleIncludes Role = "includes"
	RoleExcludes Role = "excludes"
)

// Status of a group or item in the builder. Hidden entries stay in the tree
// but are not sent for counting.
type NodeStatus string

const (
	StatusActive NodeStatus = "active"
	StatusHidden NodeStatus = "hidden"
)

type TemporalRelation string

const (
	TemporalFirstOccurrence     TemporalRelation = "FIRST_OCCURRENCE"
	TemporalAnyTimeBefore       TemporalRelation = "ANY_TIME_BEFORE"
	TemporalAnyTimeAfter        TemporalRelation = "ANY_TIME_AFTER"
	TemporalWithinXDaysOf       TemporalRelation = "WITHIN_X_DAYS_OF"
	TemporalDuringSameEncounter TemporalRelation = "DURING_SAME_ENCOUNTER_AS"
)

type SearchParameter struct {
	ParameterID string       `json:"parameter_id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Code        string       `json:"code" validate:"required"`
	DomainID    string       `json:"domain_id" validate:"required"`
	Type        CriteriaType `json:"type,omitempty"`
	ConceptID   *int64       `json:"concept_id,omitempty"`
	Group       bool         `json:"group"`
}

type Modifier struct {
	Name     ModifierType `json:"name" validate:"required"`
	Operator Operator     `json:"operator" validate:"required"`
	Operands []string     `json:"operands"`
}

type SearchItem struct {
	ID               string            `json:"id" validate:"required"`
	Type             CriteriaType      `json:"type" validate:"required"`
	SearchParameters []SearchParameter `json:"search_parameters" validate:"required,min=1,dive"`
	Modifiers        []Modifier        `json:"modifiers,omitempty" validate:"dive"`
	Status           NodeStatus        `json:"status,omitempty"`
}

type Temporal struct {
	AnchorGroupID string           `json:"anchor_group_id" validate:"required"`
	Relation      TemporalRelation `json:"relation" validate:"required"`
	Days          int              `json:"days,omitempty" validate:"gte=0"`
}

type SearchGroup struct {
	ID       string       `json:"id" validate:"required"`
	Name     string       `json:"name,omitempty"`
	Items    []SearchItem `json:"items" validate:"dive"`
	Temporal *Temporal    `json:"temporal,omitempty"`
	Status   NodeStatus   `json:"status,omitempty"`
}

type SearchRequest struct {
	Includes []SearchGroup `json:"includes" validate:"dive"`
	Excludes []SearchGroup `json:"excludes" validate:"dive"`
}

// Search execution
type Subject struct {
	ParticipantID int64 `json:"participant_id"`
}

type SearchResult struct {
	Subjects          []Subject         `json:"subjects"`
	MatchedParameters []SearchParameter `json:"matched_parameters"`
}

type GroupCount struct {
	GroupID    string `json:"group_id"`
	GroupName  string `json:"group_name,omitempty"`
	Role       Role   `json:"role,omitempty"`
	GroupCount int64  `json:"group_count"`
	Loading    bool   `json:"loading"`
}

// Saved cohort
type Cohort struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	CDRVersionID int64         `json:"cdr_version_id"`
	Criteria     SearchRequest `json:"criteria"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Cohort review
type CohortStatus string

const (
	CohortStatusNotReviewed        CohortStatus = "NOT_REVIEWED"
	CohortStatusIncluded           CohortStatus = "INCLUDED"
	CohortStatusExcluded           CohortStatus = "EXCLUDED"
	CohortStatusNeedsFurtherReview CohortStatus = "NEEDS_FURTHER_REVIEW"
)

type ParticipantCohortStatus struct {
	ParticipantID int64        `json:"participant_id"`
	Status        CohortStatus `json:"status"`
	Gender        string       `json:"gender"`
	Race          string       `json:"race"`
	Ethnicity     string       `json:"ethnicity"`
	BirthDate     string       `json:"birth_date"`
	Deceased      bool         `json:"deceased"`
}

type Column string

const (
	ColumnParticipantID Column = "PARTICIPANT_ID"
	ColumnStatus        Column = "STATUS"
	ColumnGender        Column = "GENDER"
	ColumnRace          Column = "RACE"
	ColumnEthnicity     Column = "ETHNICITY"
	ColumnBirthDate     Column = "BIRTH_DATE"
	ColumnDeceased      Column = "DECEASED"
)

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

type FilterOperator string

const (
	FilterEqual FilterOperator = "EQUAL"
	FilterIn    FilterOperator = "IN"
)

type ReviewFilter struct {
	Property Column         `json:"property"`
	Operator FilterOperator `json:"operator"`
	Values   []string       `json:"values"`
}

type ReviewQuery struct {
	Page       int            `json:"page" validate:"gte=0"`
	PageSize   int            `json:"page_size" validate:"gt=0"`
	SortColumn Column         `json:"sort_column"`
	SortOrder  SortOrder      `json:"sort_order"`
	Filters    []ReviewFilter `json:"filters"`
}

type ReviewPage struct {
	ParticipantCohortStatuses []ParticipantCohortStatus `json:"participant_cohort_statuses"`
	TotalCount                int64                     `json:"total_count"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
