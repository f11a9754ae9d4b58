package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/workflow"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password1"
	testBaseURL   = "https://loans.test"
)

type testEnv struct {
	t     *testing.T
	url   string
	store *store.Store
	admin string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return setupTestServerWithCache(t, nil)
}

// setupTestServerWithCache is setupTestServer with a custom role cache;
// nil selects the in-process default.
func setupTestServerWithCache(t *testing.T, cache roles.Cache) *testEnv {
	t.Helper()
	s := store.New(db.NewTestDB(t))
	router := NewRouter(Config{
		Store:         s,
		Roles:         roles.NewService(s, cache),
		Engine:        workflow.NewEngine(s, workflow.WithLetterPrefix("SCH")),
		JWTSecret:     testJWTSecret,
		PublicBaseURL: testBaseURL,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	env := &testEnv{t: t, url: server.URL, store: s}
	env.user("admin", model.RoleAdmin, "")
	env.admin = env.login("admin", testPassword)
	return env
}

// user creates an account holding role (none when empty).
func (e *testEnv) user(name, role, dept string) *model.User {
	e.t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(e.t, err)
	u, err := e.store.CreateUser(ctx, name, name+" Novak", "040 000 000", hash)
	require.NoError(e.t, err)
	if role != "" {
		var d *string
		if dept != "" {
			d = &dept
		}
		_, err = e.store.AssignRole(ctx, u.ID, role, d)
		require.NoError(e.t, err)
	}
	return u
}

func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	var resp loginResponse
	status := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password,
	}, &resp)
	require.Equal(e.t, http.StatusOK, status, "login as %s", username)
	require.NotEmpty(e.t, resp.Token)
	return resp.Token
}

// do sends a JSON request and decodes the response into out when given.
func (e *testEnv) do(method, path, token string, body, out any) int {
	e.t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.url+path, r)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// loanFixture is a physics department with a microscope (5) and a scale
// (1), a borrower and the department's owner.
type loanFixture struct {
	*testEnv
	microscope, scale  model.Item
	borrower, owner    string
	borrowerID, deptID int64
}

func newLoanFixture(t *testing.T) *loanFixture {
	env := setupTestServer(t)
	f := &loanFixture{testEnv: env}

	var dept model.Department
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/departments", env.admin,
		map[string]string{"name": "Physics", "code": "FIZ"}, &dept))
	f.deptID = dept.ID

	for _, it := range []struct {
		dst   *model.Item
		name  string
		total int
	}{{&f.microscope, "Microscope", 5}, {&f.scale, "Scale", 1}} {
		require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/items", env.admin,
			map[string]any{"name": it.name, "department_id": dept.ID, "total_quantity": it.total}, it.dst))
	}

	f.borrowerID = env.user("ana", model.RoleBorrower, "").ID
	env.user("cene", model.RoleOwner, "Physics")
	f.borrower = env.login("ana", testPassword)
	f.owner = env.login("cene", testPassword)
	return f
}

func (f *loanFixture) newRequest(submit, letter bool) requestView {
	f.t.Helper()
	var view requestView
	status := f.do(http.MethodPost, "/api/requests", f.borrower, map[string]any{
		"purpose":         "Science fair",
		"location":        "Gym",
		"start_date":      "2026-10-12",
		"end_date":        "2026-10-14",
		"pic_name":        "Ana Novak",
		"pic_contact":     "040 111 222",
		"requires_letter": letter,
		"submit":          submit,
		"items": []map[string]any{
			{"item_id": f.microscope.ID, "quantity": 2},
			{"item_id": f.scale.ID, "quantity": 1},
		},
	}, &view)
	require.Equal(f.t, http.StatusCreated, status)
	return view
}

func (f *loanFixture) transition(token string, id int64, action string, body any) (int, requestView, errorBody) {
	f.t.Helper()
	var raw json.RawMessage
	status := f.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/%s", id, action), token, body, &raw)
	var view requestView
	var eb errorBody
	if status == http.StatusOK {
		require.NoError(f.t, json.Unmarshal(raw, &view))
	} else {
		require.NoError(f.t, json.Unmarshal(raw, &eb))
	}
	return status, view, eb
}

func (f *loanFixture) item(id int64) model.Item {
	f.t.Helper()
	var it model.Item
	require.Equal(f.t, http.StatusOK, f.do(http.MethodGet, fmt.Sprintf("/api/items/%d", id), f.borrower, nil, &it))
	return it
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	var eb errorBody
	status := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	}, &eb)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", eb.Kind)

	status = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody", "password": "whatever",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/items", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/requests", "not-a-token", nil, nil))
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/auth/logout", env.admin, nil, nil))

	var eb errorBody
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/me", env.admin, nil, &eb))
	assert.Equal(t, "token revoked", eb.Error)

	// A fresh login works again.
	token := env.login("admin", testPassword)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/me", token, nil, nil))
}

func TestMe(t *testing.T) {
	env := setupTestServer(t)
	_, err := env.store.CreateDepartment(context.Background(), "Sports", "SPO")
	require.NoError(t, err)
	env.user("fran", model.RoleOwner, "Sports")
	token := env.login("fran", testPassword)

	var me meResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/me", token, nil, &me))
	assert.Equal(t, "fran", me.User.Username)
	assert.Equal(t, []string{model.RoleOwner}, me.Roles)
	assert.True(t, me.Capabilities.IsOwner)
	assert.True(t, me.Capabilities.CanManageInventory)
	assert.False(t, me.Capabilities.IsAdmin)
	assert.Equal(t, "Sports", me.Department)
	assert.NotZero(t, me.DepartmentID)
}

func TestChangePassword(t *testing.T) {
	env := setupTestServer(t)

	status := env.do(http.MethodPut, "/api/auth/password", env.admin, map[string]string{
		"current_password": "wrong-one", "new_password": "new-password",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(http.MethodPut, "/api/auth/password", env.admin, map[string]string{
		"current_password": testPassword, "new_password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.do(http.MethodPut, "/api/auth/password", env.admin, map[string]string{
		"current_password": testPassword, "new_password": "new-password",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	env.login("admin", "new-password")
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	env := setupTestServer(t)
	env.user("ana", model.RoleBorrower, "")
	token := env.login("ana", testPassword)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/users", token, nil, nil))
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/departments", token,
		map[string]string{"name": "Art"}, nil))

	var created model.User
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/users", env.admin,
		map[string]string{"username": "bor", "password": testPassword, "full_name": "Bor Kos"}, &created))
	assert.Equal(t, "Bor Kos", created.FullName)

	var eb errorBody
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/users", env.admin,
		map[string]string{"username": "bor", "password": testPassword}, &eb))
	assert.Equal(t, "conflict", eb.Kind)

	var users []model.User
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/users", env.admin, nil, &users))
	assert.Len(t, users, 3)
}

func TestLoanWorkflowOverHTTP(t *testing.T) {
	f := newLoanFixture(t)

	created := f.newRequest(true, true)
	assert.Equal(t, model.StatusPendingOwner, created.Status)
	assert.Equal(t, []workflow.Action{workflow.ActionCancel}, created.Actions)
	assert.Equal(t, testBaseURL+"/api/verify/"+created.VerificationCode, created.VerificationURL)

	// The owner sees it in their queue with their actions.
	var queue []requestView
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/requests?status=pending_owner", f.owner, nil, &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, []workflow.Action{workflow.ActionOwnerApprove, workflow.ActionOwnerReject}, queue[0].Actions)

	// The borrower cannot approve their own request.
	status, _, eb := f.transition(f.borrower, created.ID, "owner-approve", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", eb.Kind)

	status, view, _ := f.transition(f.owner, created.ID, "owner-approve", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.StatusApproved, view.Status)
	require.NotNil(t, view.LetterNumber)
	assert.Regexp(t, `^001/SCH/[IVX]+/\d{4}$`, *view.LetterNumber)

	status, view, _ = f.transition(f.owner, created.ID, "start", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.StatusActive, view.Status)
	assert.Equal(t, 3, f.item(f.microscope.ID).AvailableQuantity)
	scale := f.item(f.scale.ID)
	assert.Equal(t, 0, scale.AvailableQuantity)
	assert.Equal(t, model.ItemStatusBorrowed, scale.Status)

	status, view, _ = f.transition(f.owner, created.ID, "complete", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.StatusCompleted, view.Status)
	assert.Equal(t, 5, f.item(f.microscope.ID).AvailableQuantity)
	assert.Equal(t, model.ItemStatusAvailable, f.item(f.scale.ID).Status)
	for _, step := range view.Timeline {
		assert.True(t, step.Reached, step.Key)
	}

	status, _, eb = f.transition(f.borrower, created.ID, "cancel", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_state", eb.Kind)
}

func TestInsufficientStockOverHTTP(t *testing.T) {
	f := newLoanFixture(t)
	first := f.newRequest(true, false)
	second := f.newRequest(true, false)
	for _, id := range []int64{first.ID, second.ID} {
		status, _, _ := f.transition(f.owner, id, "owner_approve", nil)
		require.Equal(t, http.StatusOK, status)
	}

	status, _, _ := f.transition(f.owner, first.ID, "start", nil)
	require.Equal(t, http.StatusOK, status)

	status, _, eb := f.transition(f.owner, second.ID, "start", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "insufficient_stock", eb.Kind)
	assert.Equal(t, 3, f.item(f.microscope.ID).AvailableQuantity, "only the first loan took stock")
}

func TestRejectionOverHTTP(t *testing.T) {
	f := newLoanFixture(t)
	created := f.newRequest(true, false)

	status, view, _ := f.transition(f.owner, created.ID, "owner-reject", map[string]string{"reason": "Exams that week"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.StatusRejected, view.Status)
	require.NotNil(t, view.Outcome)
	assert.Equal(t, "Exams that week", view.Outcome.Reason)
	assert.Empty(t, view.Actions)

	status, _, _ = f.transition(f.owner, created.ID, "start", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _, _ = f.transition(f.owner, created.ID, "teleport", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDraftEditing(t *testing.T) {
	f := newLoanFixture(t)
	draft := f.newRequest(false, false)
	assert.Equal(t, model.StatusDraft, draft.Status)
	assert.Equal(t, []workflow.Action{workflow.ActionSubmit, workflow.ActionCancel}, draft.Actions)

	var view requestView
	status := f.do(http.MethodPut, fmt.Sprintf("/api/requests/%d", draft.ID), f.borrower, map[string]any{
		"purpose":    "Open day",
		"start_date": "2026-11-02",
		"end_date":   "2026-11-02",
		"items":      []map[string]any{{"item_id": f.microscope.ID, "quantity": 4}},
	}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Open day", view.Purpose)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 4, view.Items[0].Quantity)

	var eb errorBody
	status = f.do(http.MethodPut, fmt.Sprintf("/api/requests/%d", draft.ID), f.borrower, map[string]any{
		"purpose":    "Open day",
		"start_date": "2026-11-03",
		"end_date":   "2026-11-02",
		"items":      []map[string]any{{"item_id": f.microscope.ID, "quantity": 1}},
	}, &eb)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", eb.Kind)

	status = f.do(http.MethodPut, fmt.Sprintf("/api/requests/%d", draft.ID), f.borrower, map[string]any{
		"purpose": "Open day", "start_date": "tomorrow", "end_date": "2026-11-02",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRequestVisibility(t *testing.T) {
	f := newLoanFixture(t)
	created := f.newRequest(true, false)

	f.user("bor", model.RoleBorrower, "")
	other := f.login("bor", testPassword)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d", created.ID), other, nil, nil))

	var list []requestView
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/requests", other, nil, &list))
	assert.Empty(t, list)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/requests", f.admin, nil, &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/requests/999", f.admin, nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/requests?status=lost", f.admin, nil, nil))
}

func TestRoleGrantAppliesImmediately(t *testing.T) {
	f := newLoanFixture(t)
	created := f.newRequest(true, false)

	dana := f.user("dana", "", "")
	token := f.login("dana", testPassword)

	status, _, _ := f.transition(token, created.ID, "owner-approve", nil)
	require.Equal(t, http.StatusForbidden, status)

	var grant model.RoleAssignment
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, fmt.Sprintf("/api/users/%d/roles", dana.ID), f.admin,
		map[string]string{"role": model.RoleOwner, "department": "Physics"}, &grant))

	status, _, _ = f.transition(token, created.ID, "owner-approve", nil)
	assert.Equal(t, http.StatusOK, status, "same token, fresh roles")

	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", grant.ID), f.admin, nil, nil))
	var me meResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/me", token, nil, &me))
	assert.Empty(t, me.Roles)
}

func TestRoleRevokeAppliesImmediately(t *testing.T) {
	f := newLoanFixture(t)
	pending := f.newRequest(true, false)

	dana := f.user("dana", "", "")
	token := f.login("dana", testPassword)

	var grant model.RoleAssignment
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, fmt.Sprintf("/api/users/%d/roles", dana.ID), f.admin,
		map[string]string{"role": model.RoleOwner, "department": "Physics"}, &grant))

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/items", token,
		map[string]any{"name": "Prism", "total_quantity": 2}, nil))

	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", grant.ID), f.admin, nil, nil))

	// Same token, next request: the owner capabilities are gone.
	var eb errorBody
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/items", token,
		map[string]any{"name": "Lens", "total_quantity": 1}, &eb))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPut, fmt.Sprintf("/api/items/%d", f.microscope.ID), token,
		map[string]any{"name": "Microscope", "total_quantity": 6}, nil))

	status, _, eb := f.transition(token, pending.ID, "owner-approve", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", eb.Kind)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d", pending.ID), token, nil, nil))
}

// undeletableCache is a role cache whose deletes always fail, as when the
// shared cache is unreachable.
type undeletableCache struct{}

func (undeletableCache) Get(context.Context, int64) (*roles.Snapshot, error) { return nil, nil }
func (undeletableCache) Generation(context.Context, int64) (uint64, error)   { return 0, nil }
func (undeletableCache) Set(context.Context, *roles.Snapshot, uint64) error  { return nil }
func (undeletableCache) Delete(context.Context, int64) error {
	return errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func TestRoleChangeReportsFailedRefresh(t *testing.T) {
	env := setupTestServerWithCache(t, undeletableCache{})
	u := env.user("ana", "", "")
	path := fmt.Sprintf("/api/users/%d/roles", u.ID)

	var eb errorBody
	status := env.do(http.MethodPost, path, env.admin, map[string]string{"role": model.RoleBorrower}, &eb)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "gateway", eb.Kind)
	assert.Contains(t, eb.Error, "change saved")

	var list []model.RoleAssignment
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, path, env.admin, nil, &list))
	require.Len(t, list, 1, "the grant itself was stored")

	status = env.do(http.MethodDelete, fmt.Sprintf("/api/roles/%d", list[0].ID), env.admin, nil, &eb)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "gateway", eb.Kind)

	status = env.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", u.ID), env.admin, nil, &eb)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestStoreFailuresReportGateway(t *testing.T) {
	database := db.NewTestDB(t)
	s := store.New(database)
	require.NoError(t, database.Close())

	_, err := s.Request(context.Background(), 1)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	writeError(rec, err, "loading request")

	var eb errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&eb))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "gateway", eb.Kind)
	assert.NotContains(t, eb.Error, "closed", "storage details stay in the log")

	rec = httptest.NewRecorder()
	writeError(rec, fmt.Errorf("loading request: %w", model.ErrNotFound), "loading request")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleGrantValidation(t *testing.T) {
	env := setupTestServer(t)
	u := env.user("ana", "", "")
	path := fmt.Sprintf("/api/users/%d/roles", u.ID)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, env.admin, map[string]string{"role": "janitor"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, env.admin, map[string]string{"role": model.RoleOwner}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, env.admin,
		map[string]string{"role": model.RoleOwner, "department": "Nowhere"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, env.admin,
		map[string]string{"role": model.RoleBorrower, "department": "Physics"}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/users/999/roles", env.admin,
		map[string]string{"role": model.RoleBorrower}, nil))

	var list []model.RoleAssignment
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, path, env.admin, map[string]string{"role": model.RoleBorrower}, nil))
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, path, env.admin, nil, &list))
	assert.Len(t, list, 1)
}

func TestLetterAndVerification(t *testing.T) {
	f := newLoanFixture(t)
	created := f.newRequest(true, true)

	// Drafts and pending requests have no letter yet.
	var eb errorBody
	assert.Equal(t, http.StatusConflict, f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d/letter", created.ID), f.borrower, nil, &eb))
	assert.Equal(t, "invalid_state", eb.Kind)

	status, _, _ := f.transition(f.owner, created.ID, "owner-approve", nil)
	require.Equal(t, http.StatusOK, status)

	var letter letterView
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d/letter", created.ID), f.borrower, nil, &letter))
	assert.Contains(t, letter.LetterNumber, "/SCH/")
	assert.Equal(t, "Physics", letter.Department)
	assert.Equal(t, "ana Novak", letter.Borrower.Name)
	assert.Equal(t, "cene Novak", letter.OwnerReviewer)
	assert.Len(t, letter.Items, 2)
	assert.NotNil(t, letter.IssuedAt)

	// Verification needs no token.
	var v verifyResponse
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/verify/"+created.VerificationCode, "", nil, &v))
	assert.Equal(t, model.StatusApproved, v.Status)
	assert.Equal(t, letter.LetterNumber, *v.LetterNumber)
	assert.Equal(t, "ana Novak", v.Borrower)
	require.Len(t, v.Timeline, 5)
	assert.True(t, v.Timeline[2].Reached, "letter ready")
	assert.False(t, v.Timeline[3].Reached, "not on loan yet")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/verify/unknown", "", nil, nil))

	draft := f.newRequest(false, false)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/verify/"+draft.VerificationCode, "", nil, nil))
}

func TestOwnerManagesOnlyOwnDepartment(t *testing.T) {
	f := newLoanFixture(t)
	var sports model.Department
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/departments", f.admin,
		map[string]string{"name": "Sports"}, &sports))

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/items", f.owner,
		map[string]any{"name": "Ball", "department_id": sports.ID, "total_quantity": 3}, nil))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/items", f.borrower,
		map[string]any{"name": "Ball", "total_quantity": 3}, nil))

	// Owners default to their own department.
	var prism model.Item
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/items", f.owner,
		map[string]any{"name": "Prism", "total_quantity": 2}, &prism))
	assert.Equal(t, f.deptID, prism.DepartmentID)

	var updated model.Item
	require.Equal(t, http.StatusOK, f.do(http.MethodPut, fmt.Sprintf("/api/items/%d", prism.ID), f.owner,
		map[string]any{"name": "Glass prism", "total_quantity": 4, "status": model.ItemStatusMaintenance}, &updated))
	assert.Equal(t, 4, updated.AvailableQuantity)
	assert.Equal(t, model.ItemStatusMaintenance, updated.Status)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPut, fmt.Sprintf("/api/items/%d", prism.ID), f.owner,
		map[string]any{"name": "Glass prism", "department_id": sports.ID, "total_quantity": 4}, nil))
}

func TestItemCannotShrinkBelowLoans(t *testing.T) {
	f := newLoanFixture(t)
	created := f.newRequest(true, false)
	f.transition(f.owner, created.ID, "owner-approve", nil)
	status, _, _ := f.transition(f.owner, created.ID, "start", nil)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPut, fmt.Sprintf("/api/items/%d", f.microscope.ID), f.owner,
		map[string]any{"name": "Microscope", "total_quantity": 1}, nil))
	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, fmt.Sprintf("/api/items/%d", f.microscope.ID), f.owner, nil, nil))

	var it model.Item
	require.Equal(t, http.StatusOK, f.do(http.MethodPut, fmt.Sprintf("/api/items/%d", f.scale.ID), f.owner,
		map[string]any{"name": "Scale", "total_quantity": 2}, &it))
	assert.Equal(t, 1, it.AvailableQuantity)
	assert.Equal(t, model.ItemStatusAvailable, it.Status)
}

func TestItemImageUpload(t *testing.T) {
	f := newLoanFixture(t)

	img := image.NewRGBA(image.Rect(0, 0, 600, 300))
	for x := 0; x < 600; x++ {
		for y := 0; y < 300; y++ {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))

	upload := func(token string, data []byte) int {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/items/%d/image", f.url, f.microscope.ID), &body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, upload(f.borrower, pngData.Bytes()))
	assert.Equal(t, http.StatusBadRequest, upload(f.owner, []byte("not an image")))
	require.Equal(t, http.StatusOK, upload(f.owner, pngData.Bytes()))

	for _, q := range []string{"", "?thumb=1"} {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/items/%d/image%s", f.url, f.microscope.ID, q), nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.borrower)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		_, _, err = image.Decode(bytes.NewReader(data))
		assert.NoError(t, err)
	}

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, fmt.Sprintf("/api/items/%d/image", f.scale.ID), f.borrower, nil, nil))
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestDuplicateDepartmentConflicts(t *testing.T) {
	env := setupTestServer(t)
	body := map[string]string{"name": "Chemistry", "code": "KEM"}
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/departments", env.admin, body, nil))

	var eb errorBody
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/departments", env.admin, body, &eb))
	assert.Equal(t, "conflict", eb.Kind)
}
