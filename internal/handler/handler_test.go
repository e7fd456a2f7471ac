package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/papergen/internal/i18n"
	"github.com/pavelanni/papergen/internal/model"
	"github.com/pavelanni/papergen/internal/paper"
	"github.com/pavelanni/papergen/internal/store"
)

const testPassword = "secret"

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bank := model.QuestionBank{
		Units: []model.Unit{
			{ID: 1, CourseID: 1, Number: 1, Title: "Kinematics"},
			{ID: 2, CourseID: 1, Number: 2, Title: "Dynamics"},
		},
	}
	for i := int64(1); i <= 10; i++ {
		bank.Questions = append(bank.Questions, model.Question{
			ID: i, CourseID: 1, UnitID: 1 + i%2, Text: "question", Marks: 5,
			Bloom: model.BloomApply, Difficulty: model.DifficultyMedium,
		})
	}
	if err := st.ImportBank(bank); err != nil {
		t.Fatalf("ImportBank: %v", err)
	}

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	gen := paper.NewGenerator(paper.WithSeed(1), paper.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	h := New(paper.NewService(gen, st, st), st, hash)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

const configJSON = `{
	"course_id": 1,
	"exam_type": "midterm",
	"total_marks": 30,
	"units": [{"id": 1}, {"id": 2}],
	"difficulty_distribution": {"easy": 30, "medium": 50, "hard": 20},
	"bloom_distribution": {"1": 20, "3": 80}
}`

func do(t *testing.T, method, url, body string, admin bool, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.SetBasicAuth(AdminUser, testPassword)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestValidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers/validate", configJSON, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res := decode[paper.ValidationResult](t, resp); !res.Valid {
		t.Errorf("expected valid config, got %+v", res.Violations)
	}

	bad := strings.Replace(configJSON, `"hard": 20`, `"hard": 10`, 1)
	resp = do(t, http.MethodPost, srv.URL+"/api/papers/validate", bad, false)
	res := decode[paper.ValidationResult](t, resp)
	if res.Valid || len(res.Violations) != 1 || res.Violations[0].Code != paper.CodeDistributionSum {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Violations[0].Message, "90") {
		t.Errorf("message should mention the sum: %q", res.Violations[0].Message)
	}
}

func TestValidateEndpointLocalized(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers/validate", `{"course_id":1,"total_marks":0,"units":[{"id":1}],
		"difficulty_distribution":{"easy":100},"bloom_distribution":{"1":100}}`, false, "Accept-Language", "ru")
	res := decode[paper.ValidationResult](t, resp)
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", res.Violations)
	}
	en := appI18n.T(appI18n.WithLocalizer(t.Context(), appI18n.NewLocalizer("en")), paper.CodeTotalMarksNotPositive)
	if res.Violations[0].Message == en {
		t.Errorf("expected a Russian message, got %q", res.Violations[0].Message)
	}
}

func TestValidateEndpointBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers/validate", `{not json`, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateRequiresAdmin(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers/generate", configJSON, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/papers/generate", strings.NewReader(configJSON))
	req.SetBasicAuth(AdminUser, "wrong")
	wrong, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer wrong.Body.Close()
	if wrong.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", wrong.StatusCode)
	}
}

func TestGenerateFallbackAndSave(t *testing.T) {
	srv, st := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers/generate", configJSON, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	gen := decode[generateResponse](t, resp)
	if gen.Saved {
		t.Error("paper should not be saved without save=true")
	}
	if gen.Paper.Method != model.MethodFallback || gen.Paper.TotalMarks < 30 {
		t.Errorf("unexpected paper: method=%q marks=%d", gen.Paper.Method, gen.Paper.TotalMarks)
	}
	if gen.Warning != "" {
		t.Errorf("unexpected warning %q", gen.Warning)
	}
	if gen.Paper.Config.Units[0].Title != "Kinematics" {
		t.Errorf("units given by id were not resolved: %+v", gen.Paper.Config.Units)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/papers/generate?save=true", configJSON, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	saved := decode[generateResponse](t, resp)
	if !saved.Saved {
		t.Fatal("expected saved paper")
	}
	if _, err := st.GetPaper(saved.Paper.ID); err != nil {
		t.Errorf("saved paper not in store: %v", err)
	}
}

func TestGenerateShortPaperWarning(t *testing.T) {
	srv, _ := newTestServer(t)

	cfg := strings.Replace(configJSON, `"total_marks": 30`, `"total_marks": 500`, 1)
	resp := do(t, http.MethodPost, srv.URL+"/api/papers/generate", cfg, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	gen := decode[generateResponse](t, resp)
	if gen.Paper.TotalMarks != 50 {
		t.Errorf("expected the whole bank (50 marks), got %d", gen.Paper.TotalMarks)
	}
	if !strings.Contains(gen.Warning, "50") || !strings.Contains(gen.Warning, "500") {
		t.Errorf("unexpected warning %q", gen.Warning)
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)

	bad := strings.Replace(configJSON, `"units": [{"id": 1}, {"id": 2}]`, `"units": []`, 1)
	resp := do(t, http.MethodPost, srv.URL+"/api/papers/generate", bad, true)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if len(body.Violations) != 1 || body.Violations[0].Code != paper.CodeUnitsEmpty {
		t.Errorf("unexpected violations: %+v", body.Violations)
	}
}

func TestPaperEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	p := model.GeneratedPaper{
		ID:         "p1",
		Questions:  []model.PaperQuestion{{ID: 1, Text: "q", Marks: 5, UnitID: 1}},
		TotalMarks: 5,
		Config:     model.GenerationConfig{CourseID: 1, TotalMarks: 5},
		Method:     model.MethodFallback,
	}
	body, _ := json.Marshal(p)

	resp := do(t, http.MethodPost, srv.URL+"/api/papers", string(body), true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	if saved := decode[model.GeneratedPaper](t, resp); saved.Status != model.PaperDraft {
		t.Errorf("status = %q, want draft", saved.Status)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/papers", string(body), true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate save status = %d, want 409", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/papers", `{"id":"p3","status":"archived"}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status value = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/papers/p1", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := decode[model.GeneratedPaper](t, resp); got.ID != "p1" || got.TotalMarks != 5 {
		t.Errorf("unexpected paper: %+v", got)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/papers", "", false)
	if list := decode[[]model.GeneratedPaper](t, resp); len(list) != 1 {
		t.Errorf("expected 1 paper, got %d", len(list))
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/papers/p1", "", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("delete without auth = %d, want 401", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, srv.URL+"/api/papers/p1", "", true)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/api/papers/p1", "", false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/papers", "", true)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d, want 204", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/api/papers", "", false)
	if list := decode[[]model.GeneratedPaper](t, resp); len(list) != 0 {
		t.Errorf("expected empty history, got %d", len(list))
	}
}

func TestBankEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/courses/1/units", "", false)
	if units := decode[[]model.Unit](t, resp); len(units) != 2 {
		t.Errorf("expected 2 units, got %d", len(units))
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/questions?course_id=1&unit_id=2", "", false)
	qs := decode[[]model.Question](t, resp)
	if len(qs) != 5 {
		t.Errorf("expected 5 questions of unit 2, got %d", len(qs))
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/questions?course_id=x", "", false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad course_id status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/levels", "", false)
	levels := decode[map[string][]model.Level](t, resp)
	if len(levels["bloom_levels"]) != 6 || len(levels["difficulties"]) != 3 {
		t.Errorf("unexpected levels: %+v", levels)
	}
}
