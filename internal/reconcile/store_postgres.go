package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"logiplatform/internal/common/database"
	"logiplatform/internal/common/money"
)

// PostgresCaseStore implements CaseStore against Postgres.
type PostgresCaseStore struct {
	db *database.DB
}

// NewPostgresCaseStore creates a Postgres-backed case store.
func NewPostgresCaseStore(db *database.DB) *PostgresCaseStore {
	return &PostgresCaseStore{db: db}
}

const caseColumns = `
	id, company_id, provider, awb,
	expected_minor, billed_minor, currency, variance_percent,
	status, review_note, created_at, updated_at, resolved_at`

func (s *PostgresCaseStore) CreateCase(ctx context.Context, c *VarianceCase) error {
	query := `
		INSERT INTO variance_cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.Exec(ctx, query,
		c.ID, c.CompanyID, c.Provider, c.AWB,
		c.Expected.AmountMinor, c.Billed.AmountMinor, c.Expected.Currency, c.VariancePercent,
		c.Status, c.ReviewNote, c.CreatedAt, c.UpdatedAt, c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting variance case: %w", err)
	}
	return nil
}

func (s *PostgresCaseStore) GetCase(ctx context.Context, id string) (*VarianceCase, error) {
	query := `SELECT ` + caseColumns + ` FROM variance_cases WHERE id = $1`
	return scanCase(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresCaseStore) UpdateCase(ctx context.Context, c *VarianceCase) error {
	query := `
		UPDATE variance_cases
		SET status = $1, review_note = $2, updated_at = $3, resolved_at = $4
		WHERE id = $5
	`
	tag, err := s.db.Exec(ctx, query, c.Status, c.ReviewNote, c.UpdatedAt, c.ResolvedAt, c.ID)
	if err != nil {
		return fmt.Errorf("updating variance case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (s *PostgresCaseStore) ListCases(ctx context.Context, companyID string, status CaseStatus, limit, offset int) ([]*VarianceCase, int64, error) {
	where := ` WHERE ($1 = '' OR company_id = $1) AND ($2 = '' OR status = $2)`

	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM variance_cases`+where, companyID, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting variance cases: %w", err)
	}

	query := `SELECT ` + caseColumns + ` FROM variance_cases` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.Query(ctx, query, companyID, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing variance cases: %w", err)
	}
	defer rows.Close()

	var cases []*VarianceCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		cases = append(cases, c)
	}
	return cases, total, rows.Err()
}

func scanCase(row pgx.Row) (*VarianceCase, error) {
	var c VarianceCase
	var expected, billed int64
	var currency string
	var note *string

	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Provider, &c.AWB,
		&expected, &billed, &currency, &c.VariancePercent,
		&c.Status, &note, &c.CreatedAt, &c.UpdatedAt, &c.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("scanning variance case: %w", err)
	}

	cur := money.Currency(currency)
	c.Expected = money.New(expected, cur)
	c.Billed = money.New(billed, cur)
	if note != nil {
		c.ReviewNote = *note
	}
	return &c, nil
}
