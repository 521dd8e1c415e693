// Package config reads the TOML declaration file: a [database] block with
// connection settings and [[models]] blocks describing the declared models.
// It converts the document into validated model definitions; a file that
// parses but declares an invalid model is rejected here, before anything
// touches the database.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"tempora/internal/model"
)

// declFile is the top-level TOML document. [database] and [[models]] are
// both top-level keys.
type declFile struct {
	Database tomlDatabase `toml:"database"`
	Models   []tomlModel  `toml:"models"`
}

// tomlDatabase maps [database].
type tomlDatabase struct {
	DSN    string `toml:"dsn"`
	Schema string `toml:"schema"`
}

// tomlModel maps one [[models]] block.
type tomlModel struct {
	Name        string      `toml:"name"`
	Table       string      `toml:"table"`
	Schema      string      `toml:"schema"`
	Strategy    string      `toml:"strategy"`
	SoftDelete  bool        `toml:"soft_delete"`
	MultiTenant bool        `toml:"multi_tenant"`
	TenantField string      `toml:"tenant_field"`
	Fields      []tomlField `toml:"fields"`
}

// tomlField maps one [[models.fields]] block.
type tomlField struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	Nullable   bool   `toml:"nullable"`
	Default    string `toml:"default"`
	MaxLength  int    `toml:"max_length"`
	Unique     bool   `toml:"unique"`
	Index      bool   `toml:"index"`
	IndexWhere string `toml:"index_where"`
	References string `toml:"references"`
	OnDelete   string `toml:"on_delete"`
	Check      string `toml:"check"`
	Precision  int    `toml:"precision"`
	Scale      int    `toml:"scale"`
	RawType    string `toml:"raw_type"`
}

// Config is the converted, validated declaration.
type Config struct {
	DSN    string
	Schema string
	Models []*model.Definition
}

// LoadFile opens and parses a declaration file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads TOML content from reader and returns the validated
// configuration.
func Load(r io.Reader) (*Config, error) {
	var df declFile
	if _, err := toml.NewDecoder(r).Decode(&df); err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}

	cfg := &Config{
		DSN:    df.Database.DSN,
		Schema: df.Database.Schema,
		Models: make([]*model.Definition, 0, len(df.Models)),
	}

	for i := range df.Models {
		def, err := convertModel(&df.Models[i], df.Database.Schema)
		if err != nil {
			return nil, fmt.Errorf("config: model %q: %w", df.Models[i].Name, err)
		}
		cfg.Models = append(cfg.Models, def)
	}

	return cfg, nil
}

func convertModel(tm *tomlModel, defaultSchema string) (*model.Definition, error) {
	schema := tm.Schema
	if schema == "" {
		schema = defaultSchema
	}

	def := &model.Definition{
		Name:        tm.Name,
		Table:       tm.Table,
		Schema:      schema,
		Strategy:    model.Strategy(tm.Strategy),
		SoftDelete:  tm.SoftDelete,
		MultiTenant: tm.MultiTenant,
		TenantField: tm.TenantField,
		Fields:      make([]model.Field, 0, len(tm.Fields)),
	}
	if tm.Strategy == "" {
		def.Strategy = model.StrategyNone
	}

	for i := range tm.Fields {
		tf := &tm.Fields[i]
		def.Fields = append(def.Fields, model.Field{
			Name:         tf.Name,
			Type:         model.FieldType(tf.Type),
			Nullable:     tf.Nullable,
			Default:      tf.Default,
			MaxLength:    tf.MaxLength,
			Unique:       tf.Unique,
			Index:        tf.Index,
			IndexWhere:   tf.IndexWhere,
			ForeignKey:   tf.References,
			OnDelete:     tf.OnDelete,
			Check:        tf.Check,
			Precision:    tf.Precision,
			Scale:        tf.Scale,
			TypeOverride: tf.RawType,
		})
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
