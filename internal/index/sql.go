package index

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/imgbed/internal/database"
	"github.com/koustreak/imgbed/internal/errs"
)

// Table is the SQL table holding one document per driver.
const Table = "asset_index"

// SQLBackend stores the document as one row of the asset_index table, keyed
// by driver name.
type SQLBackend struct {
	db     database.DB
	driver string
	now    func() time.Time
}

// NewSQLBackend returns a backend for driver's row.
func NewSQLBackend(db database.DB, driver string) *SQLBackend {
	return &SQLBackend{db: db, driver: driver, now: time.Now}
}

// EnsureSchema creates the table when it does not exist.
func EnsureSchema(ctx context.Context, db database.DB) error {
	docType := "TEXT"
	if db.Dialect() == database.DriverMySQL {
		docType = "LONGTEXT"
	}
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		driver     VARCHAR(64) NOT NULL PRIMARY KEY,
		document   %s NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`, Table, docType)
	return db.Exec(ctx, q)
}

func (b *SQLBackend) Load(ctx context.Context) ([]byte, bool, error) {
	q := fmt.Sprintf(`SELECT document FROM %s WHERE driver = %s`,
		Table, database.Placeholder(b.db.Dialect(), 1))

	var doc string
	if err := b.db.QueryRow(ctx, q, b.driver).Scan(&doc); err != nil {
		if errs.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(doc), true, nil
}

func (b *SQLBackend) Store(ctx context.Context, data []byte) error {
	d := b.db.Dialect()
	p1, p2, p3 := database.Placeholder(d, 1), database.Placeholder(d, 2), database.Placeholder(d, 3)

	var q string
	if d == database.DriverMySQL {
		q = fmt.Sprintf(`INSERT INTO %s (driver, document, updated_at) VALUES (%s, %s, %s)
			ON DUPLICATE KEY UPDATE document = VALUES(document), updated_at = VALUES(updated_at)`,
			Table, p1, p2, p3)
	} else {
		q = fmt.Sprintf(`INSERT INTO %s (driver, document, updated_at) VALUES (%s, %s, %s)
			ON CONFLICT (driver) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
			Table, p1, p2, p3)
	}
	return b.db.Exec(ctx, q, b.driver, string(data), b.now().UTC())
}

func (b *SQLBackend) Name() string {
	return fmt.Sprintf("%s:%s/%s", b.db.Dialect(), Table, b.driver)
}
