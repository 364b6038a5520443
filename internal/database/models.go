package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Company is a tracked organisation.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    *string   `json:"domain"`
	Country   *string   `json:"country"`
	Goal      *string   `json:"goal"`
	Flag      *string   `json:"flag"`
	CreatedAt time.Time `json:"created_at"`
}

// Roles a user can hold in a company.
const (
	RoleAdmin    = "admin"
	RoleReadOnly = "read_only"
)

// CompanyUser links a user to a company.
type CompanyUser struct {
	ID        int64     `json:"id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile holds per-user settings.
type UserProfile struct {
	ID                        string    `json:"id"`
	Email                     *string   `json:"email"`
	FirstName                 *string   `json:"first_name"`
	LastName                  *string   `json:"last_name"`
	SearchOptimizationCountry *string   `json:"search_optimization_country"`
	OnboardingCompleted       bool      `json:"onboarding_completed"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// ProfileUpdate lists the profile fields that can change. Nil fields are
// left untouched.
type ProfileUpdate struct {
	FirstName                 *string `json:"first_name"`
	LastName                  *string `json:"last_name"`
	SearchOptimizationCountry *string `json:"search_optimization_country"`
}

// Competitor is a roster entry. The tracked company usually appears here
// too, under its own name.
type Competitor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Website   *string   `json:"website"`
	Approved  bool      `json:"approved"`
	CompanyID string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

// Prompt is a question regularly asked to AI models.
type Prompt struct {
	ID          int64     `json:"id"`
	Prompt      string    `json:"prompt"`
	Description *string   `json:"description"`
	Country     *string   `json:"country"`
	CompanyID   string    `json:"company_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Response is one AI answer to a prompt.
type Response struct {
	ID        int64     `json:"id"`
	PromptID  int64     `json:"prompt"`
	CompanyID string    `json:"company"`
	Body      *string   `json:"response"`
	Model     *string   `json:"model"`
	SourceIDs []int64   `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is the webhook's verdict for one response and one competitor.
// A nil CompetitorID refers to the tracked company.
type Analysis struct {
	ID             int64     `json:"id"`
	ResponseID     int64     `json:"response"`
	CompetitorID   *int64    `json:"competitor"`
	CompanyAppears bool      `json:"company_appears"`
	Sentiment      *float64  `json:"sentiment"`
	Position       *int      `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

// Source is a web page cited by responses.
type Source struct {
	ID        int64      `json:"id"`
	Link      string     `json:"link"`
	Title     *string    `json:"title"`
	Excerpt   *string    `json:"excerpt"`
	FetchedAt *time.Time `json:"fetched_at"`
}

// Country is a selectable market.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	Companies           int
	Users               int
	Competitors         int
	ApprovedCompetitors int
	Prompts             int
	Responses           int
	Analyses            int
	Sources             int
	SourcesWithPreview  int
}

const timeLayout = "2006-01-02T15:04:05.000Z"

// ts converts t to the bind value the dialect stores timestamps as.
// SQLite stores fixed-width UTC text so comparisons stay lexical.
func (db *DB) ts(t time.Time) any {
	if db.dialect == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(timeLayout)
}

// Time scans timestamps from either dialect.
type Time struct {
	Time  time.Time
	Valid bool
}

var timeFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *Time) parse(s string) error {
	for _, f := range timeFormats {
		if p, err := time.Parse(f, s); err == nil {
			t.Time, t.Valid = p.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// Value implements driver.Valuer for completeness in tests.
func (t Time) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC().Format(timeLayout), nil
}

func (t Time) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func encodeIDs(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(raw *string) []int64 {
	if raw == nil || *raw == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*raw), &ids); err != nil {
		return nil
	}
	return ids
}
