package pgstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"

	authcore "github.com/deskhive/authcore"
)

func (s *Store) InsertToken(ctx context.Context, record *authcore.TokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into ephemeral_tokens (
			id, owner_key, kind, ciphertext, issued_at, expires_at, receipt_id,
			client_ip, client_location, client_browser, client_os, client_device
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		record.ID, record.OwnerKey, int(record.Kind), record.Ciphertext,
		record.IssuedAt, record.ExpiresAt, record.ReceiptID,
		nullString(record.Context.IP), nullString(record.Context.Location),
		nullString(record.Context.Browser), nullString(record.Context.OS),
		nullString(record.Context.Device),
	)
	return err
}

func (s *Store) ListTokens(ctx context.Context, ownerKey string, kind authcore.TokenKind) ([]authcore.TokenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_key, kind, ciphertext, issued_at, expires_at, receipt_id,
		       client_ip, client_location, client_browser, client_os, client_device
		from ephemeral_tokens
		where owner_key = $1 and kind = $2
		order by issued_at
	`, ownerKey, int(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.TokenRecord
	for rows.Next() {
		var (
			record                        authcore.TokenRecord
			kindValue                     int
			ip, loc, browser, os, device  sql.NullString
		)
		err := rows.Scan(
			&record.ID, &record.OwnerKey, &kindValue, &record.Ciphertext,
			&record.IssuedAt, &record.ExpiresAt, &record.ReceiptID,
			&ip, &loc, &browser, &os, &device,
		)
		if err != nil {
			return nil, err
		}
		record.Kind = authcore.TokenKind(kindValue)
		record.Context = authcore.ClientContext{
			IP: ip.String, Location: loc.String,
			Browser: browser.String, OS: os.String, Device: device.String,
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// DeleteTokens removes the given rows and reports how many existed, which
// serializes racing redeemers on the affected count.
func (s *Store) DeleteTokens(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		`delete from ephemeral_tokens where id in (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
