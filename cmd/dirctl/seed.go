package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"erpdir/internal/app"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/pkg/logger"
)

// Fixed ids so tokens minted with dirctl token match the seeded company.
const (
	demoCompanyID = "00000000-0000-4000-8000-000000000001"
	demoModuleID  = "00000000-0000-4000-8000-0000000000a1"
)

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "load demo directories and records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "company", Usage: "company id", Value: demoCompanyID},
			&cli.StringFlag{Name: "module", Usage: "licensed module id", Value: demoModuleID},
		},
		Action: func(c *cli.Context) error {
			companyID, err := id.Parse(c.String("company"))
			if err != nil {
				return fmt.Errorf("invalid company: %w", err)
			}
			moduleID, err := id.Parse(c.String("module"))
			if err != nil {
				return fmt.Errorf("invalid module: %w", err)
			}

			ctx, a, log, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &seeder{app: a, log: log, companyID: companyID}
			if err := s.run(ctx, moduleID); err != nil {
				return err
			}
			log.Infow("demo data seeded", "company_id", companyID)
			return nil
		},
	}
}

type seeder struct {
	app       *app.App
	log       *logger.Logger
	companyID id.ID
}

func (s *seeder) run(ctx context.Context, moduleID id.ID) error {
	existing, err := s.app.Schema.ListDirectories(ctx, directory.DirectoryQuery{Search: "Countries"})
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.Name == "Countries" {
			s.log.Info("demo directories already present, skipping")
			return nil
		}
	}

	cities, err := s.directory(ctx, "Cities", directory.TypeSystem, nil, field("name", "string", true))
	if err != nil {
		return err
	}
	regions, err := s.directory(ctx, "Regions", directory.TypeSystem, nil, field("name", "string", true))
	if err != nil {
		return err
	}
	countries, err := s.directory(ctx, "Countries", directory.TypeSystem,
		entity.Attributes{"selectDisplayField": "name"},
		field("name", "string", true), field("code", "string", false))
	if err != nil {
		return err
	}

	regionRecords := map[string][]string{
		"Ile-de-France": {"Paris", "Versailles"},
		"Occitanie":     {"Toulouse", "Montpellier"},
	}
	for region, towns := range regionRecords {
		if _, err := s.record(ctx, regions, entity.Attributes{"parentValue": "France"}, "name", region); err != nil {
			return err
		}
		for _, town := range towns {
			if _, err := s.record(ctx, cities, entity.Attributes{"parentValue": region}, "name", town); err != nil {
				return err
			}
		}
	}

	cascading := entity.Attributes{"cascadingConfig": map[string]any{
		"enabled": true,
		"dependentFields": []any{
			map[string]any{
				"fieldName":   "region",
				"directoryId": regions.dir.ID.String(),
				"displayName": "Region",
				"required":    true,
			},
			map[string]any{
				"fieldName":   "city",
				"directoryId": cities.dir.ID.String(),
				"displayName": "City",
				"dependsOn":   "region",
			},
		},
	}}
	if _, err := s.record(ctx, countries, cascading, "name", "France", "code", "FR"); err != nil {
		return err
	}
	if _, err := s.record(ctx, countries, nil, "name", "Portugal", "code", "PT"); err != nil {
		return err
	}

	countryRef := countries.dir.ID
	customers, err := s.directory(ctx, "Customers", directory.TypeCompany,
		entity.Attributes{"capability": "table"},
		field("name", "string", true),
		directory.DefineFieldInput{Name: "country", Type: "relation", RelationID: &countryRef},
		field("creditLimit", "decimal", false),
		field("active", "bool", false))
	if err != nil {
		return err
	}
	if _, err := s.record(ctx, customers, nil, "name", "Acme", "country", countries.first.String(), "creditLimit", "1500.00", "active", true); err != nil {
		return err
	}

	if err := s.app.Licensing.SetEnabled(ctx, s.companyID, moduleID, true); err != nil {
		return err
	}
	warehouses, err := s.app.Schema.DefineDirectory(ctx, directory.DefineDirectoryInput{Name: "Warehouses", Type: directory.TypeModule})
	if err != nil {
		return err
	}
	if _, err := s.app.Schema.DefineField(ctx, warehouses.ID, field("name", "string", true)); err != nil {
		return err
	}
	if _, err := s.app.Bindings.Bind(ctx, s.companyID, warehouses.ID, &moduleID); err != nil {
		return err
	}
	return nil
}

type seeded struct {
	dir     *directory.Directory
	binding *directory.CompanyDirectory
	fields  map[string]id.ID
	first   id.ID
}

func field(name, typ string, required bool) directory.DefineFieldInput {
	return directory.DefineFieldInput{Name: name, Type: typ, Required: required}
}

func (s *seeder) directory(ctx context.Context, name string, typ directory.Type, meta entity.Attributes, fields ...directory.DefineFieldInput) (*seeded, error) {
	d, err := s.app.Schema.DefineDirectory(ctx, directory.DefineDirectoryInput{Name: name, Type: typ, Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("define %s: %w", name, err)
	}
	out := &seeded{dir: d, fields: make(map[string]id.ID, len(fields))}
	for _, in := range fields {
		f, err := s.app.Schema.DefineField(ctx, d.ID, in)
		if err != nil {
			return nil, fmt.Errorf("define %s.%s: %w", name, in.Name, err)
		}
		out.fields[f.Name] = f.ID
	}
	out.binding, err = s.app.Bindings.Bind(ctx, s.companyID, d.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", name, err)
	}
	s.log.Debugw("directory seeded", "name", name, "directory_id", d.ID)
	return out, nil
}

// record creates a record from name/value pairs.
func (s *seeder) record(ctx context.Context, dir *seeded, meta entity.Attributes, pairs ...any) (*directory.RecordView, error) {
	values := make(map[id.ID]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		fieldID, ok := dir.fields[name]
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", dir.dir.Name, name)
		}
		values[fieldID] = pairs[i+1]
	}
	rec, err := s.app.Records.CreateRecord(ctx, s.companyID, dir.binding.ID, directory.RecordInput{Values: values, Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("create %s record: %w", dir.dir.Name, err)
	}
	if id.IsNil(dir.first) {
		dir.first = rec.ID
	}
	return rec, nil
}
