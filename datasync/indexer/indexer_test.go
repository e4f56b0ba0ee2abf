package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTableNames pins the relational schema names this package has
// committed to in migrations and downstream queries; an actual MySQL
// round trip is exercised only in the deployment environment where a
// broker DSN is available.
func TestTableNames(t *testing.T) {
	assert.Equal(t, "blocks", BlockRecord{}.TableName())
	assert.Equal(t, "transactions", TransactionRecord{}.TableName())
}
