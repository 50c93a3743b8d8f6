package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type BadgeStore struct {
	db *sqlx.DB
}

func NewBadgeStore(db *sqlx.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

func (s *BadgeStore) GetBadge(ctx context.Context, cardUID string) (types.Badge, error) {
	var r struct {
		CardUID      string `db:"card_uid"`
		EmployeeID   string `db:"employee_id"`
		EmployeeName string `db:"employee_name"`
		Department   string `db:"department"`
		Active       bool   `db:"active"`
	}
	err := s.db.GetContext(ctx, &r, `
		SELECT card_uid, employee_id, employee_name, department, active
		FROM badges WHERE card_uid = $1`, strings.TrimSpace(cardUID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Badge{}, store.ErrNotFound
	}
	if err != nil {
		return types.Badge{}, fmt.Errorf("get badge: %w", err)
	}
	return types.Badge{
		CardUID:      r.CardUID,
		EmployeeID:   r.EmployeeID,
		EmployeeName: r.EmployeeName,
		Department:   r.Department,
		Active:       r.Active,
	}, nil
}

func (s *BadgeStore) UpsertBadge(ctx context.Context, b types.Badge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO badges (card_uid, employee_id, employee_name, department, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (card_uid) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			employee_name = EXCLUDED.employee_name,
			department = EXCLUDED.department,
			active = EXCLUDED.active,
			updated_at = NOW()`,
		b.CardUID, b.EmployeeID, b.EmployeeName, b.Department, b.Active)
	if err != nil {
		return fmt.Errorf("upsert badge %s: %w", b.CardUID, err)
	}
	return nil
}
