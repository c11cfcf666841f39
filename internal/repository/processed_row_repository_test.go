package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rpattn/pagelake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type chunkTx struct {
	pgx.Tx
	pool      *chunkPool
	rows      int
	committed bool
}

func (t *chunkTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if t.pool.failOnChunk == len(t.pool.txs) {
		return 0, errors.New("copy failed")
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		if len(values) != len(columns) {
			return n, fmt.Errorf("expected %d values, got %d", len(columns), len(values))
		}
		n++
	}
	t.rows = int(n)
	return n, src.Err()
}

func (t *chunkTx) Commit(ctx context.Context) error {
	t.committed = true
	t.pool.commits = append(t.pool.commits, t.rows)
	return nil
}

func (t *chunkTx) Rollback(ctx context.Context) error {
	t.pool.rollbacks++
	return nil
}

type chunkPool struct {
	txs         []*chunkTx
	commits     []int
	rollbacks   int
	failOnChunk int
}

func (p *chunkPool) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &chunkTx{pool: p}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func (p *chunkPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (p *chunkPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *chunkPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func makeRows(n int) []domain.ProcessedRow {
	rows := make([]domain.ProcessedRow, n)
	for i := range rows {
		rows[i] = domain.ProcessedRow{
			StagingDataID: 1,
			ModelName:     fmt.Sprintf("model-%d", i),
			Amount:        decimal.NewFromInt(int64(i + 1)),
		}
	}
	return rows
}

func TestInsertBulkCommitsEachChunk(t *testing.T) {
	pool := &chunkPool{failOnChunk: -1}
	repo := &processedRowRepository{db: pool, chunkSize: DefaultBulkChunkSize}

	result, err := repo.InsertBulk(context.Background(), makeRows(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ChunksCommitted != 3 || result.RowsInserted != 250 {
		t.Fatalf("unexpected result: %+v", result)
	}
	want := []int{100, 100, 50}
	if len(pool.commits) != len(want) {
		t.Fatalf("expected %d commits, got %v", len(want), pool.commits)
	}
	for i, n := range want {
		if pool.commits[i] != n {
			t.Fatalf("chunk %d: expected %d rows, got %d", i, n, pool.commits[i])
		}
	}
	if pool.rollbacks != 0 {
		t.Fatalf("did not expect rollbacks, got %d", pool.rollbacks)
	}
}

func TestInsertBulkKeepsCommittedChunksOnFailure(t *testing.T) {
	pool := &chunkPool{failOnChunk: 2}
	repo := &processedRowRepository{db: pool, chunkSize: DefaultBulkChunkSize}

	result, err := repo.InsertBulk(context.Background(), makeRows(250))
	if err == nil {
		t.Fatalf("expected error from failing chunk")
	}
	if result.ChunksCommitted != 1 || result.RowsInserted != 100 {
		t.Fatalf("expected first chunk to survive, got %+v", result)
	}
	if pool.rollbacks != 1 {
		t.Fatalf("expected failing chunk to roll back, got %d rollbacks", pool.rollbacks)
	}
}

func TestInsertBulkEmpty(t *testing.T) {
	pool := &chunkPool{failOnChunk: -1}
	repo := &processedRowRepository{db: pool, chunkSize: DefaultBulkChunkSize}

	result, err := repo.InsertBulk(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunksCommitted != 0 || len(pool.txs) != 0 {
		t.Fatalf("expected no transactions, got %+v and %d txs", result, len(pool.txs))
	}
}

func TestUniqueViolationDetection(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation to be detected")
	}
	if isUniqueViolation(errors.New("other")) {
		t.Fatalf("plain errors are not unique violations")
	}
	if !isInvalidTextRepresentation(&pgconn.PgError{Code: "22P02"}) {
		t.Fatalf("expected invalid text representation to be detected")
	}
}
