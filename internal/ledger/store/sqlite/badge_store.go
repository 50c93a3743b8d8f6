package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/ledgerwatch/internal/db"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type BadgeStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewBadgeStore(db *sql.DB, writer *dbpkg.Worker) *BadgeStore {
	return &BadgeStore{db: db, writer: writer}
}

func (s *BadgeStore) GetBadge(ctx context.Context, cardUID string) (types.Badge, error) {
	var (
		b      types.Badge
		active int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT card_uid, employee_id, employee_name, department, active
FROM badges WHERE card_uid = ?;
`, strings.TrimSpace(cardUID)).Scan(&b.CardUID, &b.EmployeeID, &b.EmployeeName, &b.Department, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Badge{}, store.ErrNotFound
	}
	if err != nil {
		return types.Badge{}, fmt.Errorf("GetBadge: %w", err)
	}
	b.Active = active == 1
	return b, nil
}

func (s *BadgeStore) UpsertBadge(ctx context.Context, b types.Badge) error {
	now := toMs(time.Now())
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO badges(card_uid, employee_id, employee_name, department, active, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(card_uid) DO UPDATE SET
  employee_id   = excluded.employee_id,
  employee_name = excluded.employee_name,
  department    = excluded.department,
  active        = excluded.active,
  updated_at_ms = excluded.updated_at_ms;
`, b.CardUID, b.EmployeeID, b.EmployeeName, b.Department, boolInt(b.Active), now); err != nil {
			return fmt.Errorf("UpsertBadge %s: %w", b.CardUID, err)
		}
		return nil
	})
}
