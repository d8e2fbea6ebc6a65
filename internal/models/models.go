package models

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Catalog field ids. The ids double as column names in the candidates table.
const (
	FieldName       = "Name"
	FieldPhone      = "Phone"
	FieldEmail      = "Email"
	FieldLocation   = "Location"
	FieldTech       = "Tech"
	FieldExperience = "Number of Experience"
	FieldDataSource = "Data Source"
	FieldLoadedAt   = "When Data is loaded in database"
	FieldSalary     = "Currency Sal"
	FieldCompany    = "Which Company working"
	FieldUpdatedAt  = "When was the profile updated lastly"
)

const (
	// DoNotImport is the mapping target meaning "skip this column"
	DoNotImport = "do-not-import"
	// DefaultDataSource is used when an upload has no filename
	DefaultDataSource = "File Upload"
	// ManualEntrySource marks candidates typed in by hand
	ManualEntrySource = "Manual Entry"
	// DateLayout is the calendar date format of the auto-populated date fields
	DateLayout = "2006-01-02"
)

// FieldDefinition describes one field a candidate record can carry
type FieldDefinition struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Required     bool   `json:"required"`
	AutoPopulate bool   `json:"auto_populate"`
}

// Catalog is the ordered list of fields the system understands
type Catalog []FieldDefinition

// DefaultCatalog returns the candidate schema in display order
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: FieldName, Label: "Full Name", Required: true},
		{ID: FieldPhone, Label: "Phone Number", Required: true},
		{ID: FieldEmail, Label: "Email Address", Required: true},
		{ID: FieldLocation, Label: "Location", Required: true},
		{ID: FieldTech, Label: "Technology Stack", Required: true},
		{ID: FieldExperience, Label: "Years of Experience", Required: true},
		{ID: FieldDataSource, Label: "Source of Data", AutoPopulate: true},
		{ID: FieldLoadedAt, Label: "Database Upload Date", AutoPopulate: true},
		{ID: FieldSalary, Label: "Salary (Currency)"},
		{ID: FieldCompany, Label: "Current Company"},
		{ID: FieldUpdatedAt, Label: "Last Profile Update", AutoPopulate: true},
	}
}

// Validate checks that every field has a non-empty, unique id
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for i, f := range c {
		if strings.TrimSpace(f.ID) == "" {
			return eris.Errorf("models: catalog field %d has an empty id", i)
		}
		if seen[f.ID] {
			return eris.Errorf("models: duplicate catalog field id %q", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// Mappable returns the fields a user may map columns to, in catalog order
func (c Catalog) Mappable() Catalog {
	out := make(Catalog, 0, len(c))
	for _, f := range c {
		if !f.AutoPopulate {
			out = append(out, f)
		}
	}
	return out
}

// Required returns the ids of required fields in catalog order
func (c Catalog) Required() []string {
	var ids []string
	for _, f := range c {
		if f.Required {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// IDs returns every field id in catalog order
func (c Catalog) IDs() []string {
	ids := make([]string, len(c))
	for i, f := range c {
		ids[i] = f.ID
	}
	return ids
}

// Lookup finds a field by id
func (c Catalog) Lookup(id string) (FieldDefinition, bool) {
	for _, f := range c {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// SourceDataset is the parsed content of one uploaded spreadsheet
type SourceDataset struct {
	Filename   string     `json:"filename"`
	Headers    []string   `json:"headers"`
	SampleRows [][]string `json:"sample_rows"`
	AllRows    [][]string `json:"-"`
}

// ColumnMapping maps a source header to a catalog field id.
// An empty value or DoNotImport means the column is not imported.
type ColumnMapping map[string]string

// IsAbsent reports whether a mapping target means "do not import"
func IsAbsent(target string) bool {
	return target == "" || target == DoNotImport
}

// Clone returns an independent copy of the mapping
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Targets returns the set of field ids that at least one header maps to
func (m ColumnMapping) Targets() map[string]bool {
	out := make(map[string]bool, len(m))
	for _, v := range m {
		if !IsAbsent(v) {
			out[v] = true
		}
	}
	return out
}

// CandidateRecord maps every catalog field id to its string value
type CandidateRecord map[string]string

// NewCandidateRecord returns a record with every catalog field set to ""
func NewCandidateRecord(catalog Catalog) CandidateRecord {
	rec := make(CandidateRecord, len(catalog))
	for _, f := range catalog {
		rec[f.ID] = ""
	}
	return rec
}

// Clone returns an independent copy of the record
func (r CandidateRecord) Clone() CandidateRecord {
	out := make(CandidateRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Candidate is a persisted candidate record
type Candidate struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Fields    CandidateRecord `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
}

// UploadRun tracks the outcome of one spreadsheet upload
type UploadRun struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	UserID       string         `json:"user_id"`
	TotalRecords int            `json:"total_records"`
	SuccessCount int            `json:"success_count"`
	ErrorCount   int            `json:"error_count"`
	UploadDate   time.Time      `json:"upload_date"`
	Failures     []FailedRecord `json:"failures,omitempty"`
}

// FailedRecord is one row that could not be persisted
type FailedRecord struct {
	ID           string          `json:"id,omitempty"`
	UploadID     string          `json:"upload_id,omitempty"`
	RowNumber    int             `json:"row_number"`
	ErrorMessage string          `json:"error_message"`
	RecordData   CandidateRecord `json:"record_data"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
}

// Role is an application role
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// NormalizeRole maps free-form role names onto the known roles
func NormalizeRole(name string) Role {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.Contains(n, "super") && strings.Contains(n, "admin"):
		return RoleSuperAdmin
	case strings.Contains(n, "admin"):
		return RoleAdmin
	default:
		return RoleUser
	}
}

// RoleRecord is a stored role definition
type RoleRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}
