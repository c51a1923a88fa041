package db

import (
	"context"
	"fmt"
	"strings"
)

// EnsureMediumPartition creates the inodes and paths partitions for
// mediumHash if they do not already exist, along with their
// per-partition index and updated_at-less status index and the
// partition-to-partition foreign key from paths to inodes. Safe to
// call repeatedly — every statement is idempotent.
//
// Postgres does not let a partition-bound CREATE TABLE ... PARTITION
// OF carry a foreign key to another table's *parent*; the FK must
// target the sibling partition directly, which is why this function
// creates both partitions before adding the cross-reference.
func EnsureMediumPartition(ctx context.Context, q Querier, mediumHash string) error {
	inodesPart := partitionName("inodes", mediumHash)
	pathsPart := partitionName("paths", mediumHash)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF inodes FOR VALUES IN (%s)`,
			inodesPart, quoteLiteral(mediumHash)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF paths FOR VALUES IN (%s)`,
			pathsPart, quoteLiteral(mediumHash)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status, claimed_by, claimed_at)`,
			indexName(inodesPart, "claim"), inodesPart),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status, error_type)`,
			indexName(inodesPart, "status_error"), inodesPart),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (device, inode_number)`,
			indexName(pathsPart, "inode"), pathsPart),
		fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (medium_hash, device, inode_number)
			REFERENCES %s (medium_hash, device, inode_number)`,
			pathsPart, fkName(pathsPart), inodesPart),
	}

	for _, stmt := range stmts {
		if _, err := q.Exec(ctx, stmt); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("ensure partition %s: %w", mediumHash, err)
		}
	}
	return nil
}

func partitionName(table, mediumHash string) string {
	return fmt.Sprintf("%s_%s", table, shortHash(mediumHash))
}

func indexName(partition, suffix string) string {
	return fmt.Sprintf("%s_%s_idx", partition, suffix)
}

func fkName(partition string) string {
	return fmt.Sprintf("%s_inode_fk", partition)
}

// shortHash truncates a full hex digest to a length safe for a
// Postgres identifier (63 bytes max, and the table/suffix/idx
// decoration all share that budget).
func shortHash(mediumHash string) string {
	if len(mediumHash) > 16 {
		return mediumHash[:16]
	}
	return mediumHash
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// isAlreadyExists matches Postgres's duplicate_object/duplicate_table
// error classes, so a concurrent EnsureMediumPartition from another
// worker racing on first mount of the same medium is not an error.
func isAlreadyExists(err error) bool {
	msg := err.Error()
	for _, sub := range []string{"already exists", "duplicate_object", "duplicate_table"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
