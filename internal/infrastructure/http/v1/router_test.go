package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "erpdir/internal/core/context"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/auth"
	"erpdir/internal/domain/cascade"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/directory/directorytest"
	"erpdir/internal/domain/render"
	"erpdir/internal/infrastructure/http/v1/handlers"
	"erpdir/internal/infrastructure/http/v1/middleware"
	"erpdir/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	fx      *directorytest.Fixture
	router  *gin.Engine
	jwt     *auth.JWTService
	company id.ID
}

func newTestAPI(t *testing.T, db pinger) *testAPI {
	t.Helper()
	fx := directorytest.NewFixture(t)
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	router := NewRouter(RouterConfig{
		Logger:           logger.Nop(),
		JWTValidator:     jwt,
		Schema:           fx.Schema,
		Bindings:         fx.Bindings,
		Records:          fx.Records,
		Resolver:         fx.Resolver,
		Cascade:          cascade.NewEngine(fx.Schema, fx.Store, fx.Resolver, 0),
		Renderers:        render.NewDefaultRegistry(),
		Health:           handlers.NewHealthHandler(db, "test"),
		RelationMaxDepth: 8,
	})
	return &testAPI{fx: fx, router: router, jwt: jwt, company: id.New()}
}

func (a *testAPI) token(t *testing.T, company id.ID, admin bool, perms ...string) string {
	t.Helper()
	tok, _, err := a.jwt.GenerateAccessToken(&appctx.UserContext{
		UserID:      "user-1",
		CompanyID:   company.String(),
		Permissions: perms,
		IsAdmin:     admin,
	})
	require.NoError(t, err)
	return tok
}

func (a *testAPI) admin(t *testing.T) string {
	return a.token(t, a.company, true)
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, pinger{})
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/ready", "", nil).Code)

	down := newTestAPI(t, pinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, pinger{})

	rec := api.do(t, http.MethodGet, "/api/v1/directories", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["code"])

	rec = api.do(t, http.MethodGet, "/api/v1/directories", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionsAndCompanyScope(t *testing.T) {
	api := newTestAPI(t, pinger{})
	reader := api.token(t, api.company, false, middleware.PermDirectoryRead)

	rec := api.do(t, http.MethodPost, "/api/v1/directories", reader, map[string]any{"name": "Clients", "type": "company"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/directories", reader, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	other := id.New()
	rec = api.do(t, http.MethodGet, "/api/v1/companies/"+other.String()+"/directories", reader, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/companies/"+other.String()+"/directories", api.admin(t), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirectoryAndFieldLifecycle(t *testing.T) {
	api := newTestAPI(t, pinger{})
	tok := api.admin(t)

	rec := api.do(t, http.MethodPost, "/api/v1/directories", tok, map[string]any{
		"name":     "Clients",
		"type":     "company",
		"metadata": map[string]any{"capability": "tree"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dirID := decode(t, rec)["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/directories/"+dirID+"/fields", tok, map[string]any{"name": "Name", "type": "string"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fieldID := decode(t, rec)["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/directories/"+dirID+"/fields", tok, map[string]any{"name": "Name", "type": "text"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_FIELD", decode(t, rec)["code"])

	rec = api.do(t, http.MethodGet, "/api/v1/directories/"+dirID, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, render.CapabilityTree, body["renderer"])
	assert.Len(t, body["fields"], 1)

	rec = api.do(t, http.MethodPut, "/api/v1/directories/"+dirID+"/fields/"+fieldID, tok, map[string]any{"name": "Title"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Title", decode(t, rec)["name"])

	rec = api.do(t, http.MethodPut, "/api/v1/directories/"+id.New().String()+"/fields/"+fieldID, tok, map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/directories/"+dirID+"/fields/"+fieldID, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/directories/"+dirID, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/directories/"+dirID, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateFieldWithMissingRelationTarget(t *testing.T) {
	api := newTestAPI(t, pinger{})
	dir := api.fx.Directory(t, "Orders", nil)

	rec := api.do(t, http.MethodPost, "/api/v1/directories/"+dir.ID.String()+"/fields", api.admin(t), map[string]any{
		"name":                "Client",
		"type":                "relation",
		"relationDirectoryId": id.New().String(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_REFERENCE", decode(t, rec)["code"])
}

func TestRecordLifecycle(t *testing.T) {
	api := newTestAPI(t, pinger{})
	tok := api.admin(t)
	dir := api.fx.Directory(t, "Clients", nil)
	api.fx.Field(t, dir, "Name", directory.KindString, nil)
	api.fx.Field(t, dir, "Age", directory.KindInteger, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/bindings", tok, map[string]any{"directoryId": dir.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bindingID := decode(t, rec)["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/directories/"+dir.ID.String()+"/records", tok, map[string]any{
		"values": map[string]any{"Name": "Acme", "Age": 7},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recordID := decode(t, rec)["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/directories/"+dir.ID.String()+"/records", tok, map[string]any{
		"values": map[string]any{"Age": "old"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TYPE_MISMATCH", decode(t, rec)["code"])

	rec = api.do(t, http.MethodPut, "/api/v1/records/"+recordID, tok, map[string]any{
		"values": map[string]any{"Name": "Acme Ltd"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/directories/"+dir.ID.String()+"/data?search=ltd", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["data"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]any)["totalItems"])

	rec = api.do(t, http.MethodGet, "/api/v1/records/"+recordID+"/history", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])

	// records of another company are invisible
	stranger := api.token(t, id.New(), false, middleware.PermRecordRead)
	rec = api.do(t, http.MethodGet, "/api/v1/records/"+recordID, stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/bindings/"+bindingID, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/records/"+recordID, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelationOptionsAndLabels(t *testing.T) {
	api := newTestAPI(t, pinger{})
	tok := api.admin(t)

	clients := api.fx.Directory(t, "Clients", entity.Attributes{"selectDisplayField": "Name"})
	api.fx.Field(t, clients, "Name", directory.KindString, nil)
	orders := api.fx.Directory(t, "Orders", nil)
	clientField := api.fx.Relation(t, orders, "Client", clients)

	cb := api.fx.Bind(t, api.company, clients)
	ob := api.fx.Bind(t, api.company, orders)
	acme := api.fx.Record(t, api.company, cb, map[string]any{"Name": "Acme"}, nil)
	api.fx.Record(t, api.company, cb, map[string]any{"Name": "Globex"}, nil)
	order := api.fx.Record(t, api.company, ob, map[string]any{"Client": acme.ID.String()}, nil)

	path := "/api/v1/directories/" + orders.ID.String() + "/fields/" + clientField.ID.String() + "/options"
	rec := api.do(t, http.MethodGet, path+"?search=acm", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Acme", items[0].(map[string]any)["label"])

	rec = api.do(t, http.MethodGet, path+"?editing="+clients.ID.String(), tok, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_SELF_REFERENCE", decode(t, rec)["code"])

	rec = api.do(t, http.MethodGet, "/api/v1/records/"+order.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	labels := decode(t, rec)["labels"].(map[string]any)
	assert.Equal(t, "Acme", labels["Client"].(map[string]any)["label"])

	rec = api.do(t, http.MethodGet, "/api/v1/directories/"+orders.ID.String()+"/relations", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["outgoing"], 1)
}

func TestCascadeEndpoints(t *testing.T) {
	api := newTestAPI(t, pinger{})
	tok := api.admin(t)

	countries := api.fx.Directory(t, "Countries", entity.Attributes{"selectDisplayField": "Name"})
	api.fx.Field(t, countries, "Name", directory.KindString, nil)
	cities := api.fx.Directory(t, "Cities", entity.Attributes{"selectDisplayField": "Name"})
	api.fx.Field(t, cities, "Name", directory.KindString, nil)
	orders := api.fx.Directory(t, "Orders", nil)
	countryField := api.fx.Relation(t, orders, "Country", countries)

	cb := api.fx.Bind(t, api.company, countries)
	cityB := api.fx.Bind(t, api.company, cities)
	france := api.fx.Record(t, api.company, cb, map[string]any{"Name": "France"}, entity.Attributes{
		"cascadingConfig": map[string]any{
			"enabled": true,
			"dependentFields": []any{
				map[string]any{"fieldName": "City", "directoryId": cities.ID.String(), "required": true},
			},
		},
	})
	api.fx.Record(t, api.company, cityB, map[string]any{"Name": "Paris"}, nil)

	cfgPath := "/api/v1/directories/" + orders.ID.String() + "/fields/" + countryField.ID.String() + "/cascading-config"
	rec := api.do(t, http.MethodGet, cfgPath+"?value="+france.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["enabled"])

	rec = api.do(t, http.MethodGet, cfgPath+"?value="+id.New().String(), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["enabled"])

	rec = api.do(t, http.MethodPost, "/api/v1/cascade/visible", tok, map[string]any{
		"fieldId": countryField.ID.String(),
		"value":   france.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["visible"], 1)
	assert.Equal(t, []any{"City"}, body["missing"])

	rec = api.do(t, http.MethodPost, "/api/v1/cascade/visible", tok, map[string]any{
		"fieldId":    countryField.ID.String(),
		"value":      france.ID.String(),
		"selections": map[string]string{"City": "paris", "Ghost": "x"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, map[string]any{"City": "paris"}, body["selections"])
	assert.Empty(t, body["missing"])

	rec = api.do(t, http.MethodPost, "/api/v1/cascade/options", tok, map[string]any{
		"fieldId": countryField.ID.String(),
		"value":   france.ID.String(),
		"field":   "City",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Paris", items[0].(map[string]any)["label"])
}
