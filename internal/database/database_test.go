package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func seedCompany(t *testing.T, db *DB, name string) *Company {
	t.Helper()
	c, err := db.InsertCompany(context.Background(), Company{Name: name, Domain: ptr("https://" + name + ".com")})
	if err != nil {
		t.Fatalf("InsertCompany: %v", err)
	}
	return c
}

func TestInsertAndGetCompany(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	c := seedCompany(t, db, "acme")
	if c.ID == "" {
		t.Fatal("expected generated id")
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := db.GetCompany(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if got.Name != "acme" || *got.Domain != "https://acme.com" {
		t.Errorf("unexpected company %+v", got)
	}

	missing, err := db.GetCompany(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing company, got %v, %v", missing, err)
	}

	if err := db.UpdateCompanyGoal(ctx, c.ID, "be cited"); err != nil {
		t.Fatalf("UpdateCompanyGoal: %v", err)
	}
	got, _ = db.GetCompany(ctx, c.ID)
	if got.Goal == nil || *got.Goal != "be cited" {
		t.Errorf("goal not updated: %v", got.Goal)
	}
}

func TestCompanyMembership(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")

	if err := db.AddCompanyUser(ctx, c.ID, "user-1", RoleAdmin); err != nil {
		t.Fatalf("AddCompanyUser: %v", err)
	}
	if err := db.AddCompanyUser(ctx, c.ID, "user-1", RoleAdmin); err == nil {
		t.Error("expected duplicate membership to fail")
	}
	if err := db.AddCompanyUser(ctx, c.ID, "user-2", "owner"); err == nil {
		t.Error("expected invalid role to fail")
	}

	role, err := db.GetCompanyRole(ctx, c.ID, "user-1")
	if err != nil || role != RoleAdmin {
		t.Errorf("expected admin, got %q (%v)", role, err)
	}
	role, err = db.GetCompanyRole(ctx, c.ID, "user-2")
	if err != nil || role != "" {
		t.Errorf("expected no role, got %q (%v)", role, err)
	}

	companies, err := db.ListCompaniesForUser(ctx, "user-1")
	if err != nil || len(companies) != 1 || companies[0].ID != c.ID {
		t.Errorf("unexpected companies %+v (%v)", companies, err)
	}
}

func TestDeleteCompanyCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")
	db.AddCompanyUser(ctx, c.ID, "u", RoleAdmin)
	db.InsertCompetitor(ctx, Competitor{Name: "x", CompanyID: c.ID})

	if err := db.DeleteCompany(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}
	if role, _ := db.GetCompanyRole(ctx, c.ID, "u"); role != "" {
		t.Error("membership should be removed with the company")
	}
	if n, _ := db.CountCompetitors(ctx, c.ID, false); n != 0 {
		t.Errorf("expected competitors removed, got %d", n)
	}
}

func TestUserProfiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUserProfile(ctx, UserProfile{ID: "u1", Email: ptr("a@b.c")}); err != nil {
		t.Fatalf("UpsertUserProfile: %v", err)
	}
	if err := db.UpdateUserProfile(ctx, "u1", ProfileUpdate{FirstName: ptr("Ada"), SearchOptimizationCountry: ptr("RO")}); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	if err := db.UpdateUserProfile(ctx, "u1", ProfileUpdate{LastName: ptr("Lovelace")}); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}

	p, err := db.GetUserProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserProfile: %v", err)
	}
	if *p.FirstName != "Ada" || *p.LastName != "Lovelace" || *p.SearchOptimizationCountry != "RO" {
		t.Errorf("unexpected profile %+v", p)
	}
	if p.OnboardingCompleted {
		t.Error("onboarding should start incomplete")
	}

	if err := db.MarkOnboardingCompleted(ctx, "u1"); err != nil {
		t.Fatalf("MarkOnboardingCompleted: %v", err)
	}
	p, _ = db.GetUserProfile(ctx, "u1")
	if !p.OnboardingCompleted {
		t.Error("expected onboarding completed")
	}

	if missing, err := db.GetUserProfile(ctx, "nobody"); missing != nil || err != nil {
		t.Errorf("expected nil, nil, got %v, %v", missing, err)
	}
}

func TestCompetitors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")

	id1, _ := db.InsertCompetitor(ctx, Competitor{Name: "acme", Approved: true, CompanyID: c.ID})
	id2, _ := db.InsertCompetitor(ctx, Competitor{Name: "globex", CompanyID: c.ID})
	id3, err := db.InsertCompetitor(ctx, Competitor{Name: "initech", Website: ptr("https://initech.com"), Approved: true, CompanyID: c.ID})
	if err != nil {
		t.Fatalf("InsertCompetitor: %v", err)
	}

	all, err := db.ListCompetitors(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListCompetitors: %v", err)
	}
	if len(all) != 3 || all[0].ID != id2 {
		t.Errorf("expected pending competitor first, got %+v", all)
	}

	approved, _ := db.ListApprovedCompetitors(ctx, c.ID)
	if len(approved) != 2 || approved[0].ID != id1 || approved[1].ID != id3 {
		t.Errorf("unexpected approved roster %+v", approved)
	}
	if n, _ := db.CountCompetitors(ctx, c.ID, true); n != 2 {
		t.Errorf("expected 2 approved, got %d", n)
	}

	ok, err := db.ApproveCompetitor(ctx, c.ID, id2)
	if err != nil || !ok {
		t.Fatalf("ApproveCompetitor: %v %v", ok, err)
	}
	if n, _ := db.CountCompetitors(ctx, c.ID, true); n != 3 {
		t.Errorf("expected 3 approved, got %d", n)
	}

	self, err := db.FindCompetitorByName(ctx, c.ID, "acme")
	if err != nil || self == nil || self.ID != id1 {
		t.Errorf("expected to find self competitor, got %+v (%v)", self, err)
	}
	if none, _ := db.FindCompetitorByName(ctx, c.ID, "ACME"); none != nil {
		t.Error("name lookup must be exact")
	}

	ok, _ = db.UpdateCompetitor(ctx, c.ID, id3, "Initech", ptr("https://initech.io"))
	got, _ := db.GetCompetitor(ctx, c.ID, id3)
	if !ok || got.Name != "Initech" || *got.Website != "https://initech.io" {
		t.Errorf("update failed: %+v", got)
	}

	other := seedCompany(t, db, "other")
	if ok, _ := db.DeleteCompetitor(ctx, other.ID, id3); ok {
		t.Error("delete must be scoped to the owning company")
	}
	if ok, _ := db.DeleteCompetitor(ctx, c.ID, id3); !ok {
		t.Error("expected delete to succeed")
	}
}

func TestPrompts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")

	saved, err := db.InsertPrompts(ctx, []Prompt{
		{Prompt: "best crm", Country: ptr("RO"), CompanyID: c.ID},
		{Prompt: "cheap crm", CompanyID: c.ID},
	})
	if err != nil {
		t.Fatalf("InsertPrompts: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == 0 || saved[1].ID == 0 {
		t.Fatalf("expected ids assigned, got %+v", saved)
	}

	list, _ := db.ListPrompts(ctx, c.ID)
	if len(list) != 2 {
		t.Errorf("expected 2 prompts, got %d", len(list))
	}

	ok, _ := db.UpdatePrompt(ctx, c.ID, saved[1].ID, "affordable crm", nil)
	p, _ := db.GetPrompt(ctx, c.ID, saved[1].ID)
	if !ok || p.Prompt != "affordable crm" {
		t.Errorf("update failed: %+v", p)
	}

	if ok, _ := db.DeletePrompt(ctx, c.ID, saved[0].ID); !ok {
		t.Error("expected delete")
	}
	if p, _ := db.GetPrompt(ctx, c.ID, saved[0].ID); p != nil {
		t.Error("prompt should be gone")
	}

	if out, err := db.InsertPrompts(ctx, nil); out != nil || err != nil {
		t.Errorf("empty insert: %v %v", out, err)
	}
}

func TestResponsesAndAnalyses(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")
	prompts, _ := db.InsertPrompts(ctx, []Prompt{{Prompt: "p", CompanyID: c.ID}})
	comp, _ := db.InsertCompetitor(ctx, Competitor{Name: "acme", Approved: true, CompanyID: c.ID})

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := db.InsertResponse(ctx, Response{
			PromptID:  prompts[0].ID,
			CompanyID: c.ID,
			Body:      ptr("answer"),
			SourceIDs: []int64{int64(i + 1)},
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertResponse: %v", err)
		}
		ids = append(ids, id)
	}

	since := base.Add(24 * time.Hour)
	recent, err := db.ListResponses(ctx, ResponseFilter{CompanyID: c.ID, Since: &since})
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[1] {
		t.Errorf("unexpected window %+v", recent)
	}
	if len(recent[0].SourceIDs) != 1 || recent[0].SourceIDs[0] != 2 {
		t.Errorf("source ids not round-tripped: %v", recent[0].SourceIDs)
	}
	if !recent[0].CreatedAt.Equal(since) {
		t.Errorf("created_at mismatch: %s", recent[0].CreatedAt)
	}

	if n, _ := db.CountResponses(ctx, c.ID, &since); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	latest, err := db.LatestResponseTime(ctx, c.ID)
	if err != nil || latest == nil || !latest.Equal(base.Add(48*time.Hour)) {
		t.Errorf("unexpected latest %v (%v)", latest, err)
	}

	has, _ := db.HasAnalysis(ctx, ids, []int64{comp})
	if has {
		t.Error("expected no analysis yet")
	}
	if _, err := db.InsertAnalysis(ctx, Analysis{ResponseID: ids[0], CompetitorID: &comp, CompanyAppears: true, Sentiment: ptr(80.0), Position: ptr(1)}); err != nil {
		t.Fatalf("InsertAnalysis: %v", err)
	}
	if _, err := db.InsertAnalysis(ctx, Analysis{ResponseID: ids[1]}); err != nil {
		t.Fatalf("InsertAnalysis: %v", err)
	}

	has, _ = db.HasAnalysis(ctx, ids, []int64{comp})
	if !has {
		t.Error("expected analysis to be found")
	}

	rows, err := db.ListAnalyses(ctx, ids)
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d (%v)", len(rows), err)
	}
	if !rows[0].CompanyAppears || *rows[0].Position != 1 || *rows[0].Sentiment != 80 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].CompetitorID != nil || rows[1].Position != nil || rows[1].Sentiment != nil {
		t.Errorf("expected nulls on second row %+v", rows[1])
	}

	r, _ := db.GetResponse(ctx, ids[0])
	if r == nil || *r.Body != "answer" {
		t.Errorf("unexpected response %+v", r)
	}
}

func TestLegacySourceColumn(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")
	prompts, _ := db.InsertPrompts(ctx, []Prompt{{Prompt: "p", CompanyID: c.ID}})

	_, err := db.conn.Exec(
		"INSERT INTO responses (prompt, company, source) VALUES (?, ?, ?)", prompts[0].ID, c.ID, 42,
	)
	if err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	rs, _ := db.ListResponses(ctx, ResponseFilter{CompanyID: c.ID})
	if len(rs) != 1 || len(rs[0].SourceIDs) != 1 || rs[0].SourceIDs[0] != 42 {
		t.Errorf("expected legacy source folded in, got %+v", rs)
	}
}

func TestSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, _ := db.InsertSource(ctx, "https://a.com")
	b, _ := db.InsertSource(ctx, "https://b.com")

	pending, err := db.ListSourcesNeedingPreview(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d (%v)", len(pending), err)
	}

	if err := db.UpdateSourcePreview(ctx, a, ptr("A"), ptr("about a")); err != nil {
		t.Fatalf("UpdateSourcePreview: %v", err)
	}
	pending, _ = db.ListSourcesNeedingPreview(ctx, 10)
	if len(pending) != 1 || pending[0].ID != b {
		t.Errorf("unexpected pending %+v", pending)
	}

	got, _ := db.GetSources(ctx, []int64{a, b, 999})
	if len(got) != 2 || *got[0].Title != "A" || got[0].FetchedAt == nil || got[1].FetchedAt != nil {
		t.Errorf("unexpected sources %+v", got)
	}
}

func TestCountriesSeeded(t *testing.T) {
	db := openTestDB(t)
	countries, err := db.ListCountries(context.Background())
	if err != nil {
		t.Fatalf("ListCountries: %v", err)
	}
	if len(countries) != len(defaultCountries) {
		t.Errorf("expected %d countries, got %d", len(defaultCountries), len(countries))
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCompany(t, db, "acme")
	db.InsertCompetitor(ctx, Competitor{Name: "a", Approved: true, CompanyID: c.ID})
	db.InsertCompetitor(ctx, Competitor{Name: "b", CompanyID: c.ID})

	s, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.Companies != 1 || s.Competitors != 2 || s.ApprovedCompetitors != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestRefresh(t *testing.T) {
	db := openTestDB(t)
	if err := db.Refresh(context.Background()); err != nil {
		t.Errorf("Refresh: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: Postgres}
	if got := pg.rebind("a = ? AND b IN (?, ?)"); got != "a = $1 AND b IN ($2, $3)" {
		t.Errorf("unexpected %q", got)
	}
	lite := &DB{dialect: SQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be untouched, got %q", got)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]int64{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 {
		t.Errorf("unexpected chunks %v", got)
	}
	if chunk(nil, 2) != nil {
		t.Error("expected nil for empty input")
	}
}

func TestTimeScan(t *testing.T) {
	var ts Time
	for _, src := range []any{"2026-03-01T10:00:00.000Z", "2026-03-01 10:00:00", []byte("2026-03-01T10:00:00Z"), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)} {
		if err := ts.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if !ts.Valid || ts.Time.Hour() != 10 {
			t.Errorf("Scan(%v) gave %+v", src, ts)
		}
	}
	if err := ts.Scan(nil); err != nil || ts.Valid {
		t.Errorf("nil scan: %+v %v", ts, err)
	}
	if err := ts.Scan("yesterday"); err == nil {
		t.Error("expected error for garbage")
	}
}
