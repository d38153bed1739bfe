package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/RagePipe/internal/models"
)

func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

func scanResponses(rows *sql.Rows) ([]models.Response, error) {
	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return responses, nil
}

// scanRageEvents scans rows selected in the column order used by ListRageEvents.
func scanRageEvents(rows *sql.Rows) ([]models.RageEvent, error) {
	var events []models.RageEvent
	for rows.Next() {
		var e models.RageEvent
		err := rows.Scan(&e.ID, &e.ConversationID, &e.Op, &e.Source, &e.Delta, &e.Value,
			&e.Level, &e.PreviousLevel, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan rage event failed: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rage event rows: %w", err)
	}
	return events, nil
}
