// Copyright 2025 Certen Protocol
//
// Backend implements ledger.Backend over the skip/chain/trail tables of
// §6, each operation scoped to a single context.Background() call the way
// the teacher's repository methods take ctx from their caller — this
// backend owns its own background context since ledger.Backend's
// synchronous method set predates context plumbing (§5 places no
// suspension points beyond persistent-store I/O, which this satisfies).

package relational

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

// Backend is a Postgres-backed ledger.Backend.
type Backend struct {
	client *Client
}

// Open connects to dsn, runs pending migrations, and returns a ready
// Backend.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	client, err := NewClient(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := client.MigrateUp(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return &Backend{client: client}, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) Size() (uint64, error) {
	var rn sql.NullInt64
	err := b.client.db.QueryRowContext(context.Background(),
		`SELECT MAX(rn) FROM skip`).Scan(&rn)
	if err != nil {
		return 0, fmt.Errorf("relational: size: %w", err)
	}
	if !rn.Valid {
		return 0, nil
	}
	return uint64(rn.Int64), nil
}

func (b *Backend) ReadRowCells(rn uint64) (ledger.RowRecord, error) {
	var hIn, hRow []byte
	err := b.client.db.QueryRowContext(context.Background(),
		`SELECT h_in, h_row FROM skip WHERE rn = $1`, int64(rn)).Scan(&hIn, &hRow)
	if err == sql.ErrNoRows {
		return ledger.RowRecord{}, &ledger.MissingRowError{RN: rn}
	}
	if err != nil {
		return ledger.RowRecord{}, fmt.Errorf("relational: read row cells: %w", err)
	}
	inHash, err := hashutil.FromBytes(hIn)
	if err != nil {
		return ledger.RowRecord{}, err
	}
	rowHash, err := hashutil.FromBytes(hRow)
	if err != nil {
		return ledger.RowRecord{}, err
	}
	return ledger.RowRecord{InputHash: inHash, RowHash: rowHash}, nil
}

func (b *Backend) WriteRowCells(rn uint64, rec ledger.RowRecord) error {
	_, err := b.client.db.ExecContext(context.Background(),
		`UPDATE skip SET h_in = $2, h_row = $3 WHERE rn = $1`,
		int64(rn), rec.InputHash.Bytes(), rec.RowHash.Bytes())
	if err != nil {
		return fmt.Errorf("relational: write row cells: %w", err)
	}
	return nil
}

func (b *Backend) ReadInputHash(rn uint64) (hashutil.Hash, error) {
	var hIn []byte
	err := b.client.db.QueryRowContext(context.Background(),
		`SELECT h_in FROM skip WHERE rn = $1`, int64(rn)).Scan(&hIn)
	if err == sql.ErrNoRows {
		return hashutil.Hash{}, &ledger.MissingRowError{RN: rn}
	}
	if err != nil {
		return hashutil.Hash{}, fmt.Errorf("relational: read input hash: %w", err)
	}
	return hashutil.FromBytes(hIn)
}

func (b *Backend) WriteInputHash(rn uint64, h hashutil.Hash) error {
	_, err := b.client.db.ExecContext(context.Background(),
		`UPDATE skip SET h_in = $2 WHERE rn = $1`, int64(rn), h.Bytes())
	if err != nil {
		return fmt.Errorf("relational: write input hash: %w", err)
	}
	return nil
}

// Commit appends row rn inside a transaction that first verifies rn is
// exactly one past the current max, the same offset-conflict check
// Store.Append relies on from a non-transactional backend.
func (b *Backend) Commit(rn uint64, rec ledger.RowRecord) error {
	ctx := context.Background()
	tx, err := b.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relational: begin commit: %w", err)
	}
	defer tx.Rollback()

	var maxRN sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(rn) FROM skip`).Scan(&maxRN); err != nil {
		return fmt.Errorf("relational: commit size check: %w", err)
	}
	expected := uint64(1)
	if maxRN.Valid {
		expected = uint64(maxRN.Int64) + 1
	}
	if rn != expected {
		return &ledger.OffsetConflictError{RN: rn, Expected: expected, Actual: rn}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO skip (rn, h_in, h_row) VALUES ($1, $2, $3)`,
		int64(rn), rec.InputHash.Bytes(), rec.RowHash.Bytes()); err != nil {
		return fmt.Errorf("relational: commit insert: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) TruncateTo(newSize uint64) error {
	ctx := context.Background()
	tx, err := b.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relational: begin truncate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skip WHERE rn > $1`, int64(newSize)); err != nil {
		return fmt.Errorf("relational: truncate skip: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trail WHERE rn > $1`, int64(newSize)); err != nil {
		return fmt.Errorf("relational: truncate trail: %w", err)
	}
	return tx.Commit()
}

// PutTrail persists trail under a freshly allocated chn_id, writing one
// chain row per proof node (in order) and one trail row referencing it.
func (b *Backend) PutTrail(rn uint64, trail crumtrail.Crumtrail) error {
	ctx := context.Background()
	tx, err := b.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relational: begin put trail: %w", err)
	}
	defer tx.Rollback()

	chnID := uuid.New()
	for i, node := range trail.Proof {
		side := 0
		if node.Side == crumtrail.SiblingRight {
			side = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chain (chn_id, seq, n_hash, side) VALUES ($1, $2, $3, $4)`,
			chnID, i, node.Sibling.Bytes(), side); err != nil {
			return fmt.Errorf("relational: insert chain: %w", err)
		}
	}

	trlID := uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trail (trl_id, rn, utc, mrkl_idx, mrkl_cnt, chain_len, chn_id, hashed_value, root, ref_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		trlID, int64(rn), trail.UTCMillis, 0, 1, len(trail.Proof), chnID,
		trail.HashedValue.Bytes(), trail.Root.Bytes(), trail.RefURL); err != nil {
		return fmt.Errorf("relational: insert trail: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) GetTrail(rn uint64) (crumtrail.Crumtrail, bool, error) {
	ctx := context.Background()
	var trlID, chnID uuid.UUID
	var utc int64
	var chainLen int
	var hashedValueBytes, rootBytes []byte
	var refURL string

	err := b.client.db.QueryRowContext(ctx,
		`SELECT trl_id, utc, chain_len, chn_id, hashed_value, root, ref_url
		 FROM trail WHERE rn = $1 ORDER BY utc DESC LIMIT 1`, int64(rn)).
		Scan(&trlID, &utc, &chainLen, &chnID, &hashedValueBytes, &rootBytes, &refURL)
	if err == sql.ErrNoRows {
		return crumtrail.Crumtrail{}, false, nil
	}
	if err != nil {
		return crumtrail.Crumtrail{}, false, fmt.Errorf("relational: get trail: %w", err)
	}

	rows, err := b.client.db.QueryContext(ctx,
		`SELECT n_hash, side FROM chain WHERE chn_id = $1 ORDER BY seq ASC`, chnID)
	if err != nil {
		return crumtrail.Crumtrail{}, false, fmt.Errorf("relational: get chain: %w", err)
	}
	defer rows.Close()

	proof := make([]crumtrail.ProofNode, 0, chainLen)
	for rows.Next() {
		var sibBytes []byte
		var side int
		if err := rows.Scan(&sibBytes, &side); err != nil {
			return crumtrail.Crumtrail{}, false, fmt.Errorf("relational: scan chain: %w", err)
		}
		sibling, err := hashutil.FromBytes(sibBytes)
		if err != nil {
			return crumtrail.Crumtrail{}, false, err
		}
		s := crumtrail.SiblingLeft
		if side == 1 {
			s = crumtrail.SiblingRight
		}
		proof = append(proof, crumtrail.ProofNode{Sibling: sibling, Side: s})
	}
	if err := rows.Err(); err != nil {
		return crumtrail.Crumtrail{}, false, err
	}

	hashedValue, err := hashutil.FromBytes(hashedValueBytes)
	if err != nil {
		return crumtrail.Crumtrail{}, false, err
	}
	root, err := hashutil.FromBytes(rootBytes)
	if err != nil {
		return crumtrail.Crumtrail{}, false, err
	}
	trail, err := crumtrail.New(hashedValue, proof, root, utc, refURL)
	if err != nil {
		return crumtrail.Crumtrail{}, false, &ledger.InvalidFormatError{Section: "trail", Detail: err.Error()}
	}
	return trail, true, nil
}

func (b *Backend) ListTrailRNs() ([]uint64, error) {
	rows, err := b.client.db.QueryContext(context.Background(),
		`SELECT DISTINCT rn FROM trail ORDER BY rn ASC`)
	if err != nil {
		return nil, fmt.Errorf("relational: list trail rns: %w", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var rn int64
		if err := rows.Scan(&rn); err != nil {
			return nil, err
		}
		out = append(out, uint64(rn))
	}
	return out, rows.Err()
}
