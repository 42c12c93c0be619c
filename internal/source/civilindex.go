package source

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
)

// CivilIndexName is the adapter name recorded on vital entries.
const CivilIndexName = "civil_index"

// CivilIndexConfig configures the civil-registration index lookup.
type CivilIndexConfig struct {
	URL                 string  `mapstructure:"database_url"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxCandidates       int     `mapstructure:"max_candidates"`
	// YearTolerance widens the registration year match. Births are often
	// registered in the following quarter.
	YearTolerance int `mapstructure:"year_tolerance"`
}

// pool defines the minimal database pool interface used by CivilIndex.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// CivilIndex confirms births, deaths and marriages against a Postgres copy
// of the England & Wales GRO indexes. It is a confirmation-only source.
type CivilIndex struct {
	pool pool
	cfg  CivilIndexConfig
}

// NewCivilIndex connects to the index database.
func NewCivilIndex(ctx context.Context, cfg CivilIndexConfig) (*CivilIndex, error) {
	p, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "civil_index: connect")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "civil_index: ping")
	}
	return newCivilIndex(p, cfg), nil
}

func newCivilIndex(p pool, cfg CivilIndexConfig) *CivilIndex {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.6
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.YearTolerance <= 0 {
		cfg.YearTolerance = 1
	}
	return &CivilIndex{pool: p, cfg: cfg}
}

// Close releases the connection pool.
func (c *CivilIndex) Close() { c.pool.Close() }

func (c *CivilIndex) Name() string             { return CivilIndexName }
func (c *CivilIndex) Capabilities() Capability { return CapConfirm }
func (c *CivilIndex) Available() bool          { return c.pool != nil }

// ConfirmBirth finds the best birth registration for name around year.
func (c *CivilIndex) ConfirmBirth(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return c.lookup(ctx, "birth", name, year)
}

// ConfirmDeath finds the best death registration for name around year.
func (c *CivilIndex) ConfirmDeath(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return c.lookup(ctx, "death", name, year)
}

// FindMarriage finds the best marriage registration for name around year.
func (c *CivilIndex) FindMarriage(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return c.lookup(ctx, "marriage", name, year)
}

// lookup tries three tiers in order and returns the first hit: exact
// surname and given names, surname plus first given name, then trigram
// similarity on the full name.
func (c *CivilIndex) lookup(ctx context.Context, kind, name string, year int) (*model.VitalEntry, error) {
	parsed := names.Parse(name)
	if parsed.Surname == "" || year <= 0 {
		return nil, nil
	}
	surname := strings.ToUpper(parsed.Surname)
	given := strings.ToUpper(strings.Join(parsed.Given, " "))
	lo, hi := year-c.cfg.YearTolerance, year+c.cfg.YearTolerance

	if given != "" {
		entries, err := c.query(ctx, tier1SQL, 1, kind, surname, given, lo, hi)
		if err != nil || len(entries) > 0 {
			return first(entries), err
		}

		entries, err = c.query(ctx, tier2SQL, 2, kind, surname, strings.ToUpper(parsed.First()), lo, hi)
		if err != nil || len(entries) > 0 {
			return first(entries), err
		}
	}

	full := strings.TrimSpace(given + " " + surname)
	entries, err := c.query(ctx, tier3SQL, 3, kind, full, c.cfg.SimilarityThreshold, lo, hi, c.cfg.MaxCandidates)
	return first(entries), err
}

func first(entries []model.VitalEntry) *model.VitalEntry {
	if len(entries) == 0 {
		return nil
	}
	e := entries[0]
	return &e
}

const civilColumns = `kind, surname, given_names, reg_year, COALESCE(reg_quarter, 0), district, county, reference, COALESCE(spouse_surname, '')`

const tier1SQL = `
SELECT ` + civilColumns + `
FROM civil_index.entries
WHERE kind = $1 AND surname = $2 AND given_names = $3 AND reg_year BETWEEN $4 AND $5
ORDER BY abs(reg_year - ($4 + $5) / 2), reg_quarter`

const tier2SQL = `
SELECT ` + civilColumns + `
FROM civil_index.entries
WHERE kind = $1 AND surname = $2 AND split_part(given_names, ' ', 1) = $3 AND reg_year BETWEEN $4 AND $5
ORDER BY abs(reg_year - ($4 + $5) / 2), reg_quarter`

const tier3SQL = `
SELECT ` + civilColumns + `
FROM civil_index.entries
WHERE kind = $1
  AND similarity(given_names || ' ' || surname, $2) >= $3
  AND reg_year BETWEEN $4 AND $5
ORDER BY similarity(given_names || ' ' || surname, $2) DESC, abs(reg_year - ($4 + $5) / 2)
LIMIT $6`

func (c *CivilIndex) query(ctx context.Context, sql string, tier int, args ...any) ([]model.VitalEntry, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "civil_index: tier%d query", tier)
	}
	defer rows.Close()

	var out []model.VitalEntry
	for rows.Next() {
		var (
			e       model.VitalEntry
			surname string
			given   string
		)
		if err := rows.Scan(&e.Kind, &surname, &given, &e.Year, &e.Quarter, &e.District, &e.County, &e.Reference, &e.Spouse); err != nil {
			return nil, eris.Wrapf(err, "civil_index: tier%d scan", tier)
		}
		e.Source = CivilIndexName
		e.Name = strings.TrimSpace(given + " " + surname)
		e.MatchTier = tier
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "civil_index: tier%d rows", tier)
	}
	return out, nil
}
