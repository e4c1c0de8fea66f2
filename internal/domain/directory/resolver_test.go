package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/directory/directorytest"
)

func collect(t *testing.T, fx *directorytest.Fixture, q directory.OptionsQuery) []directory.Option {
	t.Helper()
	seq, err := fx.Resolver.ResolveOptions(context.Background(), q)
	require.NoError(t, err)
	out := []directory.Option{}
	for opt, err := range seq {
		require.NoError(t, err)
		out = append(out, opt)
	}
	return out
}

func TestResolver_AcmeClientsContracts(t *testing.T) {
	fx := directorytest.NewFixture(t)
	acme := id.New()

	contracts := fx.Directory(t, "Contracts", entity.Attributes{"selectDisplayField": "number"})
	fx.Field(t, contracts, "number", directory.KindString, nil)
	clients := fx.Directory(t, "Clients", nil)
	fx.Field(t, clients, "name", directory.KindString, nil)
	fx.Relation(t, clients, "contracts", contracts)

	clientsBinding := fx.Bind(t, acme, clients)
	fx.Record(t, acme, clientsBinding, map[string]any{"name": "UzAuto Motors"}, nil)

	opts := collect(t, fx, directory.OptionsQuery{DirectoryID: contracts.ID, CompanyID: acme})
	assert.Empty(t, opts)

	contractsBinding := fx.Bind(t, acme, contracts)
	opts = collect(t, fx, directory.OptionsQuery{DirectoryID: contracts.ID, CompanyID: acme})
	assert.Empty(t, opts, "bound but no records yet")

	contract := fx.Record(t, acme, contractsBinding, map[string]any{"number": "C-2024-001"}, nil)
	opts = collect(t, fx, directory.OptionsQuery{DirectoryID: contracts.ID, CompanyID: acme})
	require.Len(t, opts, 1)
	assert.Equal(t, contract.ID, opts[0].ID)
	assert.Equal(t, "C-2024-001", opts[0].Label)
}

func TestResolver_LabelPrecedence(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()

	d := fx.Directory(t, "Employees", entity.Attributes{"selectDisplayField": "full_name"})
	fx.Field(t, d, "code", directory.KindString, nil)
	fx.Field(t, d, "email", directory.KindString, entity.Attributes{"isVisibleOnTable": true})
	fx.Field(t, d, "full_name", directory.KindString, nil)
	b := fx.Bind(t, company, d)
	for _, name := range []string{"Ann Lee", "Bo Kim", "Cy Park"} {
		fx.Record(t, company, b, map[string]any{"code": "E", "email": "e@x.test", "full_name": name}, nil)
	}

	opts := collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company})
	require.Len(t, opts, 3)
	for _, o := range opts {
		assert.NotEqual(t, o.ID.String(), o.Label)
		assert.Contains(t, []string{"Ann Lee", "Bo Kim", "Cy Park"}, o.Label)
	}
}

func TestLabelField(t *testing.T) {
	mk := func(name string, visible bool) *directory.Field {
		return &directory.Field{
			BaseEntity: entity.NewBaseEntity(),
			Name:       name,
			Type:       directory.FieldType{Kind: directory.KindString},
			Meta:       directory.FieldMeta{IsVisibleOnTable: visible},
		}
	}
	code, title := mk("code", false), mk("title", true)
	dir := &directory.Directory{}

	dir.Meta.SelectDisplayField = "code"
	assert.Equal(t, code, directory.LabelField(dir, []*directory.Field{code, title}), "display field beats table field")

	dir.Meta.SelectDisplayField = "missing"
	assert.Equal(t, title, directory.LabelField(dir, []*directory.Field{code, title}))

	title.Meta.IsVisibleOnTable = false
	assert.Equal(t, code, directory.LabelField(dir, []*directory.Field{title, code}), "first by creation, not by display order")

	assert.Nil(t, directory.LabelField(dir, nil))
}

func TestResolver_RecordIDFallbackAndSearch(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()
	ctx := context.Background()

	d := fx.Directory(t, "Tags", nil)
	b := fx.Bind(t, company, d)
	rec, err := fx.Records.CreateRecord(ctx, company, b.ID, directory.RecordInput{})
	require.NoError(t, err)

	opts := collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company})
	require.Len(t, opts, 1)
	assert.Equal(t, rec.ID.String(), opts[0].Label)

	prefix := rec.ID.String()[:8]
	opts = collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company, Search: prefix})
	assert.Len(t, opts, 1)
}

func TestResolver_SearchIsCaseInsensitiveOnLabel(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()
	d := fx.Directory(t, "Cities", nil)
	fx.Field(t, d, "name", directory.KindString, nil)
	fx.Field(t, d, "region", directory.KindString, nil)
	b := fx.Bind(t, company, d)
	fx.Record(t, company, b, map[string]any{"name": "Tashkent", "region": "Center"}, nil)
	fx.Record(t, company, b, map[string]any{"name": "Bukhara", "region": "Kent"}, nil)

	opts := collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company, Search: "KENT"})
	require.Len(t, opts, 1, "only the label field is searched")
	assert.Equal(t, "Tashkent", opts[0].Label)
}

func TestResolver_PagesLazily(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()
	resolver := directory.NewResolver(directory.ResolverConfig{
		Directories: fx.Store,
		Fields:      fx.Store,
		Records:     fx.Store,
		Bindings:    fx.Bindings,
		PageSize:    2,
	})

	d := fx.Directory(t, "Numbers", nil)
	fx.Field(t, d, "n", directory.KindInteger, nil)
	b := fx.Bind(t, company, d)
	for i := range 5 {
		fx.Record(t, company, b, map[string]any{"n": i}, nil)
	}

	seq, err := resolver.ResolveOptions(context.Background(), directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company, Limit: 10})
	require.NoError(t, err)
	var labels []string
	for opt, err := range seq {
		require.NoError(t, err)
		labels = append(labels, opt.Label)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, labels)

	seq, err = resolver.ResolveOptions(context.Background(), directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company})
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 2, n, "zero limit means one page")

	fx.Store.FailOn("ListRecords", errors.New("timeout"))
	seq, err = resolver.ResolveOptions(context.Background(), directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company})
	require.NoError(t, err)
	for _, err := range seq {
		assert.Error(t, err)
	}
}

func TestResolver_UnresolvedAndCyclicLabels(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()
	ctx := context.Background()

	// employees label through their department, departments through their manager
	employees := fx.Directory(t, "Employees", entity.Attributes{"selectDisplayField": "department"})
	departments := fx.Directory(t, "Departments", entity.Attributes{"selectDisplayField": "manager"})
	fx.Relation(t, employees, "department", departments)
	fx.Relation(t, departments, "manager", employees)
	eb := fx.Bind(t, company, employees)
	db := fx.Bind(t, company, departments)

	emp := fx.Record(t, company, eb, nil, nil)
	dept := fx.Record(t, company, db, map[string]any{"manager": emp.ID.String()}, nil)
	keyed, err := fx.Records.ResolveFieldKeys(ctx, company, eb.ID, map[string]any{"department": dept.ID.String()})
	require.NoError(t, err)
	_, err = fx.Records.UpdateRecord(ctx, company, emp.ID, directory.RecordInput{Values: keyed})
	require.NoError(t, err)

	ref, err := fx.Resolver.ResolveLabel(ctx, employees.ID, emp.ID.String())
	require.NoError(t, err)
	assert.False(t, ref.Unresolved)
	assert.NotEmpty(t, ref.Label, "cycle terminates with a label")

	ref, err = fx.Resolver.ResolveLabel(ctx, employees.ID, id.New().String())
	require.NoError(t, err)
	assert.True(t, ref.Unresolved)

	ref, err = fx.Resolver.ResolveLabel(ctx, employees.ID, "garbage")
	require.NoError(t, err)
	assert.True(t, ref.Unresolved)
	assert.Equal(t, "garbage", ref.Label)
}

func TestResolver_SearchMatchesRelationLabel(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()
	resolver := directory.NewResolver(directory.ResolverConfig{
		Directories: fx.Store,
		Fields:      fx.Store,
		Records:     fx.Store,
		Bindings:    fx.Bindings,
		PageSize:    2,
	})

	countries := fx.Directory(t, "Countries", nil)
	fx.Field(t, countries, "name", directory.KindString, nil)
	offices := fx.Directory(t, "Offices", entity.Attributes{"selectDisplayField": "country"})
	fx.Relation(t, offices, "country", countries)
	cb := fx.Bind(t, company, countries)
	ob := fx.Bind(t, company, offices)

	france := fx.Record(t, company, cb, map[string]any{"name": "France"}, nil)
	portugal := fx.Record(t, company, cb, map[string]any{"name": "Portugal"}, nil)
	for range 3 {
		fx.Record(t, company, ob, map[string]any{"country": portugal.ID.String()}, nil)
	}
	paris := fx.Record(t, company, ob, map[string]any{"country": france.ID.String()}, nil)

	search := func(term string, limit int) []directory.Option {
		seq, err := resolver.ResolveOptions(context.Background(), directory.OptionsQuery{
			DirectoryID: offices.ID, CompanyID: company, Search: term, Limit: limit,
		})
		require.NoError(t, err)
		out := []directory.Option{}
		for opt, err := range seq {
			require.NoError(t, err)
			out = append(out, opt)
		}
		return out
	}

	opts := search("fran", 1)
	require.Len(t, opts, 1, "match found past the first page")
	assert.Equal(t, paris.ID, opts[0].ID)
	assert.Equal(t, "France", opts[0].Label)

	assert.Empty(t, search(france.ID.String(), 10), "stored id is not the label")
	assert.Len(t, search("PORT", 2), 2)
	assert.Len(t, search("port", 10), 3)
}

func TestResolver_SearchMatchesRecordIDWhenLabelMissing(t *testing.T) {
	fx := directorytest.NewFixture(t)
	company := id.New()

	d := fx.Directory(t, "Cities", nil)
	fx.Field(t, d, "name", directory.KindString, nil)
	fx.Field(t, d, "region", directory.KindString, nil)
	b := fx.Bind(t, company, d)
	fx.Record(t, company, b, map[string]any{"name": "Tashkent", "region": "Center"}, nil)
	unnamed := fx.Record(t, company, b, map[string]any{"region": "Kent"}, nil)

	opts := collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company})
	require.Len(t, opts, 2)

	tail := unnamed.ID.String()[24:]
	opts = collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company, Search: tail})
	require.Len(t, opts, 1)
	assert.Equal(t, unnamed.ID, opts[0].ID)
	assert.Equal(t, unnamed.ID.String(), opts[0].Label)

	opts = collect(t, fx, directory.OptionsQuery{DirectoryID: d.ID, CompanyID: company, Search: "kent"})
	require.Len(t, opts, 1, "region is not the label")
	assert.Equal(t, "Tashkent", opts[0].Label)
}
