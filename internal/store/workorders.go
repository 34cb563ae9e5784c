package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"fossawork-backend/models"
)

// SaveStats summarizes one idempotent persistence pass.
type SaveStats struct {
	Found     int
	New       int
	Updated   int
	Unchanged int
	Removed   int
}

// SaveScrapeResult upserts the scraped work orders for a user inside a
// single transaction. Rows are keyed by (user_id, external_id);
// first_seen_at survives updates, and orders that disappeared from the
// portal are removed. Re-running with identical input is a no-op.
func (s *Store) SaveScrapeResult(ctx context.Context, userID int64, orders []models.ScrapedWorkOrder) (SaveStats, error) {
	stats := SaveStats{Found: len(orders)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	now := timeStr(time.Now())
	seen := make([]string, 0, len(orders))

	for _, o := range orders {
		if strings.TrimSpace(o.ExternalID) == "" {
			continue
		}
		seen = append(seen, o.ExternalID)
		hash := orderHash(o)

		var (
			id       int64
			oldHash  string
			existing = true
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, content_hash FROM work_orders WHERE user_id = ? AND external_id = ?`,
			userID, o.ExternalID,
		).Scan(&id, &oldHash)
		if err == sql.ErrNoRows {
			existing = false
		} else if err != nil {
			return stats, err
		}

		if existing && oldHash == hash {
			stats.Unchanged++
			continue
		}

		if existing {
			_, err = tx.ExecContext(ctx,
				`UPDATE work_orders SET store_number = ?, customer_name = ?, address = ?,
				 service_code = ?, service_desc = ?, status = ?, visit_date = ?,
				 content_hash = ?, updated_at = ? WHERE id = ?`,
				nullStr(o.StoreNumber), nullStr(o.CustomerName), nullStr(o.Address),
				nullStr(o.ServiceCode), nullStr(o.ServiceDesc), nullStr(o.Status),
				timePtrStr(o.VisitDate), hash, now, id,
			)
			if err != nil {
				return stats, err
			}
			stats.Updated++
		} else {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO work_orders(user_id, external_id, store_number, customer_name, address,
				 service_code, service_desc, status, visit_date, content_hash, first_seen_at, updated_at)
				 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
				userID, o.ExternalID, nullStr(o.StoreNumber), nullStr(o.CustomerName), nullStr(o.Address),
				nullStr(o.ServiceCode), nullStr(o.ServiceDesc), nullStr(o.Status),
				timePtrStr(o.VisitDate), hash, now, now,
			)
			if err != nil {
				return stats, err
			}
			id, err = res.LastInsertId()
			if err != nil {
				return stats, err
			}
			stats.New++
		}

		// Dispensers are replaced wholesale for changed orders; the
		// portal does not expose stable dispenser ids.
		if _, err := tx.ExecContext(ctx, `DELETE FROM dispensers WHERE work_order_id = ?`, id); err != nil {
			return stats, err
		}
		for _, d := range o.Dispensers {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO dispensers(work_order_id, serial, make_model, position, title) VALUES(?,?,?,?,?)`,
				id, nullStr(d.Serial), nullStr(d.MakeModel), nullStr(d.Position), nullStr(d.Title),
			)
			if err != nil {
				return stats, err
			}
		}
	}

	removed, err := deleteMissing(ctx, tx, userID, seen)
	if err != nil {
		return stats, err
	}
	stats.Removed = removed

	return stats, tx.Commit()
}

func deleteMissing(ctx context.Context, tx *sql.Tx, userID int64, seen []string) (int, error) {
	if len(seen) == 0 {
		// Empty scrape result never wipes existing data; a portal page
		// that rendered nothing is indistinguishable from a bad parse.
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(seen))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(seen)+1)
	args = append(args, userID)
	for _, id := range seen {
		args = append(args, id)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM work_orders WHERE user_id = ? AND external_id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListWorkOrders returns a user's work orders with dispensers attached,
// newest update first.
func (s *Store) ListWorkOrders(ctx context.Context, userID int64) ([]models.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, external_id, store_number, customer_name, address,
		 service_code, service_desc, status, visit_date, first_seen_at, updated_at
		 FROM work_orders WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.WorkOrder
	for rows.Next() {
		var (
			o           models.WorkOrder
			storeNumber sql.NullString
			customer    sql.NullString
			address     sql.NullString
			serviceCode sql.NullString
			serviceDesc sql.NullString
			status      sql.NullString
			visitDate   sql.NullString
			firstSeen   string
			updatedAt   string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.ExternalID, &storeNumber, &customer, &address,
			&serviceCode, &serviceDesc, &status, &visitDate, &firstSeen, &updatedAt); err != nil {
			return nil, err
		}
		o.StoreNumber = storeNumber.String
		o.CustomerName = customer.String
		o.Address = address.String
		o.ServiceCode = serviceCode.String
		o.ServiceDesc = serviceDesc.String
		o.Status = status.String
		o.VisitDate = parseTime(visitDate)
		if t, err := time.Parse(time.RFC3339Nano, firstSeen); err == nil {
			o.FirstSeenAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			o.UpdatedAt = t
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		disp, err := s.listDispensers(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Dispensers = disp
	}
	return orders, nil
}

func (s *Store) listDispensers(ctx context.Context, workOrderID int64) ([]models.Dispenser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_order_id, serial, make_model, position, title
		 FROM dispensers WHERE work_order_id = ? ORDER BY id`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Dispenser
	for rows.Next() {
		var (
			d         models.Dispenser
			serial    sql.NullString
			makeModel sql.NullString
			position  sql.NullString
			title     sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.WorkOrderID, &serial, &makeModel, &position, &title); err != nil {
			return nil, err
		}
		d.Serial = serial.String
		d.MakeModel = makeModel.String
		d.Position = position.String
		d.Title = title.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func orderHash(o models.ScrapedWorkOrder) string {
	h := sha256.New()
	visit := ""
	if o.VisitDate != nil {
		visit = o.VisitDate.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s", o.StoreNumber, o.CustomerName, o.Address,
		o.ServiceCode, o.ServiceDesc, o.Status, visit)
	for _, d := range o.Dispensers {
		fmt.Fprintf(h, "|%s|%s|%s|%s", d.Serial, d.MakeModel, d.Position, d.Title)
	}
	return hex.EncodeToString(h.Sum(nil))
}
