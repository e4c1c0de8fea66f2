package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/directory/directorytest"
)

func strptr(s string) *string { return &s }

// paymentsWorld is the payment form used across the cascade tests: a
// "payment_type" relation whose options carry cascading configs.
type paymentsWorld struct {
	fx      *directorytest.Fixture
	engine  *Engine
	company id.ID

	paymentType *directory.Field

	rawMaterialPurchase *directory.RecordView
	salary              *directory.RecordView
	plain               *directory.RecordView
	chain               *directory.RecordView

	electronics, textiles *directory.RecordView
}

func newPaymentsWorld(t *testing.T) *paymentsWorld {
	t.Helper()
	fx := directorytest.NewFixture(t)
	w := &paymentsWorld{fx: fx, company: id.New()}
	w.engine = NewEngine(fx.Store, fx.Store, fx.Resolver, 0)

	inventory := fx.Directory(t, "Inventory", entity.Attributes{"selectDisplayField": "name"})
	fx.Field(t, inventory, "name", directory.KindString, nil)
	materials := fx.Directory(t, "Raw Materials", entity.Attributes{"selectDisplayField": "name"})
	fx.Field(t, materials, "name", directory.KindString, nil)
	departments := fx.Directory(t, "Departments", nil)
	fx.Field(t, departments, "name", directory.KindString, nil)
	employees := fx.Directory(t, "Employees", nil)
	fx.Field(t, employees, "name", directory.KindString, nil)
	types := fx.Directory(t, "Payment Types", nil)
	fx.Field(t, types, "code", directory.KindString, nil)
	payments := fx.Directory(t, "Payments", nil)
	w.paymentType = fx.Relation(t, payments, "payment_type", types)

	ib := fx.Bind(t, w.company, inventory)
	mb := fx.Bind(t, w.company, materials)
	db := fx.Bind(t, w.company, departments)
	fx.Bind(t, w.company, employees)
	tb := fx.Bind(t, w.company, types)
	fx.Bind(t, w.company, payments)

	w.electronics = fx.Record(t, w.company, ib, map[string]any{"name": "electronics"}, nil)
	w.textiles = fx.Record(t, w.company, ib, map[string]any{"name": "textiles"}, nil)
	for material, parent := range map[string]string{
		"circuits": "electronics", "sensors": "electronics",
		"cotton": "textiles", "silk": "textiles",
	} {
		fx.Record(t, w.company, mb, map[string]any{"name": material}, entity.Attributes{"parentValue": parent})
	}
	fx.Record(t, w.company, db, map[string]any{"name": "Finance"}, nil)

	w.rawMaterialPurchase = fx.Record(t, w.company, tb, map[string]any{"code": "buying_raw_material"}, entity.Attributes{
		"cascadingConfig": map[string]any{
			"enabled": true,
			"dependentFields": []any{
				map[string]any{"fieldName": "inventory", "directoryId": inventory.ID.String(), "displayName": "Inventory", "required": true},
				map[string]any{"fieldName": "raw_material", "directoryId": materials.ID.String(), "displayName": "Raw Material", "required": true, "dependsOn": "inventory"},
			},
		},
	})
	w.salary = fx.Record(t, w.company, tb, map[string]any{"code": "salary"}, entity.Attributes{
		"cascadingConfig": map[string]any{
			"enabled": true,
			"dependentFields": []any{
				map[string]any{"fieldName": "department", "directoryId": departments.ID.String()},
				map[string]any{"fieldName": "employee", "directoryId": employees.ID.String(), "dependsOn": "department"},
			},
		},
	})
	w.plain = fx.Record(t, w.company, tb, map[string]any{"code": "transfer"}, nil)
	w.chain = fx.Record(t, w.company, tb, map[string]any{"code": "chain"}, entity.Attributes{
		"cascadingConfig": map[string]any{
			"enabled": true,
			"dependentFields": []any{
				map[string]any{"fieldName": "A", "directoryId": inventory.ID.String()},
				map[string]any{"fieldName": "B", "directoryId": inventory.ID.String(), "dependsOn": "A"},
				map[string]any{"fieldName": "C", "directoryId": inventory.ID.String(), "dependsOn": "B", "required": true},
			},
		},
	})
	return w
}

func names(fields []directory.DependentField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.FieldName
	}
	return out
}

func labels(opts []directory.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Label
	}
	return out
}

func TestEngine_LoadConfig(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()

	cfg, err := w.engine.LoadConfig(ctx, w.paymentType.ID, w.rawMaterialPurchase.ID.String())
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"inventory", "raw_material"}, names(cfg.DependentFields))

	cfg, err = w.engine.LoadConfig(ctx, w.paymentType.ID, w.salary.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "employee"}, names(cfg.DependentFields), "another value reveals another chain")

	for _, value := range []string{w.plain.ID.String(), id.New().String(), "not-an-id", ""} {
		cfg, err = w.engine.LoadConfig(ctx, w.paymentType.ID, value)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled, value)
		assert.Empty(t, cfg.DependentFields)
	}

	_, err = w.engine.LoadConfig(ctx, id.New(), w.salary.ID.String())
	assert.True(t, apperror.IsNotFound(err))
}

func TestEngine_LoadConfigRequiresRelation(t *testing.T) {
	w := newPaymentsWorld(t)
	d := w.fx.Directory(t, "Notes", nil)
	text := w.fx.Field(t, d, "body", directory.KindText, nil)

	_, err := w.engine.LoadConfig(context.Background(), text.ID, w.salary.ID.String())
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestEngine_VisibleAndPrune(t *testing.T) {
	e := NewEngine(nil, nil, nil, 0)
	dir := id.New()
	cfg := directory.CascadingConfig{Enabled: true, DependentFields: []directory.DependentField{
		{FieldName: "A", DirectoryID: dir},
		{FieldName: "B", DirectoryID: dir, DependsOn: strptr("A")},
		{FieldName: "C", DirectoryID: dir, DependsOn: strptr("B")},
		{FieldName: "D", DirectoryID: dir},
	}}

	assert.Equal(t, []string{"A", "D"}, names(e.Visible(cfg, Selections{})))
	assert.Equal(t, []string{"A", "B", "D"}, names(e.Visible(cfg, Selections{"A": "1"})))
	assert.Equal(t, []string{"A", "B", "C", "D"}, names(e.Visible(cfg, Selections{"A": "1", "B": "2"})))

	// C survives only while its whole chain is selected
	pruned := e.Prune(cfg, Selections{"B": "2", "C": "3", "D": "4", "Z": "9"})
	assert.Equal(t, Selections{"D": "4"}, pruned)

	assert.Equal(t, []string{"B", "C"}, e.Dependents(cfg, "A"))
	assert.Empty(t, e.Dependents(cfg, "D"))

	assert.Empty(t, e.Visible(directory.CascadingConfig{Enabled: false, DependentFields: cfg.DependentFields}, Selections{}))
}

func TestEngine_DepthBound(t *testing.T) {
	e := NewEngine(nil, nil, nil, 2)
	dir := id.New()
	cfg := directory.CascadingConfig{Enabled: true, DependentFields: []directory.DependentField{
		{FieldName: "A", DirectoryID: dir},
		{FieldName: "B", DirectoryID: dir, DependsOn: strptr("A")},
		{FieldName: "C", DirectoryID: dir, DependsOn: strptr("B")},
		{FieldName: "X", DirectoryID: dir, DependsOn: strptr("Y")},
		{FieldName: "Y", DirectoryID: dir, DependsOn: strptr("X")},
	}}

	visible := names(e.Visible(cfg, Selections{"A": "1", "B": "2", "X": "3", "Y": "4"}))
	assert.Equal(t, []string{"A", "B"}, visible, "C is beyond the depth bound, X and Y loop")
}

func TestEngine_Validate(t *testing.T) {
	w := newPaymentsWorld(t)
	cfg, err := w.engine.LoadConfig(context.Background(), w.paymentType.ID, w.chain.ID.String())
	require.NoError(t, err)

	// C is required but not visible yet; A and B are optional
	assert.NoError(t, w.engine.Validate(cfg, Selections{}))
	assert.NoError(t, w.engine.Validate(cfg, Selections{"A": "1"}))

	err = w.engine.Validate(cfg, Selections{"A": "1", "B": "2"})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeFieldRequired))
	app, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"C"}, app.Details["fields"])

	assert.NoError(t, w.engine.Validate(cfg, Selections{"A": "1", "B": "2", "C": "3"}))
}

func TestEngine_RawMaterialOptionsFollowParentValue(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()
	cfg, err := w.engine.LoadConfig(ctx, w.paymentType.ID, w.rawMaterialPurchase.ID.String())
	require.NoError(t, err)

	opts, err := w.engine.Options(ctx, OptionsRequest{CompanyID: w.company, Config: cfg, Field: "inventory"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"electronics", "textiles"}, labels(opts))

	_, err = w.engine.Options(ctx, OptionsRequest{CompanyID: w.company, Config: cfg, Field: "raw_material"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "raw material hidden until inventory is chosen")

	sel := Selections{"inventory": w.electronics.ID.String()}
	opts, err = w.engine.Options(ctx, OptionsRequest{CompanyID: w.company, Config: cfg, Selections: sel, Field: "raw_material"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"circuits", "sensors"}, labels(opts))

	sel = Selections{"inventory": w.textiles.ID.String()}
	opts, err = w.engine.Options(ctx, OptionsRequest{CompanyID: w.company, Config: cfg, Selections: sel, Field: "raw_material", Search: "SIL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"silk"}, labels(opts))

	// a literal parent value works as well as a record id
	sel = Selections{"inventory": "electronics"}
	opts, err = w.engine.Options(ctx, OptionsRequest{CompanyID: w.company, Config: cfg, Selections: sel, Field: "raw_material"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"circuits", "sensors"}, labels(opts))

	assert.NotContains(t, labels(opts), "cotton")
}
