// Package mongo provides the MongoDB repair-history store. Repair records
// are diagnostics written after a repair commits; the ledger itself stays
// in PostgreSQL so repairs remain single-transaction.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/steelstore-ledger/internal/reconcile"
)

const (
	// HistoryCollectionName is the name of the repair history collection in MongoDB
	HistoryCollectionName = "repair_history"
)

// historyDocument is the stored shape of a repair record. Balances are
// kept as decimal strings: decimal.Decimal has no exported fields, so
// handing it straight to the driver's struct codec would persist an
// empty document and read back zero. UUIDs are stored as strings so the
// customer_id filter matches what is on disk.
type historyDocument struct {
	ID            string    `bson:"id"`
	CustomerID    string    `bson:"customer_id"`
	BalanceBefore string    `bson:"balance_before"`
	BalanceAfter  string    `bson:"balance_after"`
	Deleted       int       `bson:"deleted"`
	Inserted      int       `bson:"inserted"`
	ResidualCount int       `bson:"residual_count"`
	AppliedAt     time.Time `bson:"applied_at"`
}

func newHistoryDocument(record *reconcile.RepairRecord) *historyDocument {
	return &historyDocument{
		ID:            record.ID.String(),
		CustomerID:    record.CustomerID.String(),
		BalanceBefore: record.BalanceBefore.String(),
		BalanceAfter:  record.BalanceAfter.String(),
		Deleted:       record.Deleted,
		Inserted:      record.Inserted,
		ResidualCount: record.ResidualCount,
		AppliedAt:     record.AppliedAt,
	}
}

func (d *historyDocument) toRecord() (*reconcile.RepairRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid repair record id %q: %w", d.ID, err)
	}
	customerID, err := uuid.Parse(d.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("invalid repair record customer id %q: %w", d.CustomerID, err)
	}
	before, err := decimal.NewFromString(d.BalanceBefore)
	if err != nil {
		return nil, fmt.Errorf("invalid balance_before %q: %w", d.BalanceBefore, err)
	}
	after, err := decimal.NewFromString(d.BalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid balance_after %q: %w", d.BalanceAfter, err)
	}

	return &reconcile.RepairRecord{
		ID:            id,
		CustomerID:    customerID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Deleted:       d.Deleted,
		Inserted:      d.Inserted,
		ResidualCount: d.ResidualCount,
		AppliedAt:     d.AppliedAt,
	}, nil
}

// HistoryRepository stores repair records in MongoDB. It satisfies
// reconcile.HistoryRecorder.
type HistoryRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewHistoryRepository creates a new MongoDB repair history repository
func NewHistoryRepository(logger *slog.Logger, db *mongo.Database) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores one repair record
func (r *HistoryRepository) Record(ctx context.Context, record *reconcile.RepairRecord) error {
	collection := r.db.Collection(HistoryCollectionName)

	_, err := collection.InsertOne(ctx, newHistoryDocument(record))
	if err != nil {
		r.logger.Error("Failed to record repair history",
			"customer_id", record.CustomerID.String(),
			"error", err)
		return fmt.Errorf("failed to record repair history: %w", err)
	}

	return nil
}

// ListByCustomerID retrieves paginated repair records for a customer.
// Results are sorted by applied time in descending order (newest first).
func (r *HistoryRepository) ListByCustomerID(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*reconcile.RepairRecord, error) {
	collection := r.db.Collection(HistoryCollectionName)

	filter := bson.M{"customer_id": customerID.String()}
	opts := options.Find().
		SetSort(bson.M{"applied_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list repair history",
			"customer_id", customerID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list repair history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode repair history",
			"customer_id", customerID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode repair history: %w", err)
	}

	records := make([]*reconcile.RepairRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := doc.toRecord()
		if err != nil {
			r.logger.Error("Failed to decode repair history",
				"customer_id", customerID.String(),
				"error", err)
			return nil, fmt.Errorf("failed to decode repair history: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// CountByCustomerID counts the repair records for a customer
func (r *HistoryRepository) CountByCustomerID(ctx context.Context, customerID uuid.UUID) (int64, error) {
	collection := r.db.Collection(HistoryCollectionName)

	filter := bson.M{"customer_id": customerID.String()}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count repair history",
			"customer_id", customerID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count repair history: %w", err)
	}

	return count, nil
}
