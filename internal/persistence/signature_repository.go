package persistence

import (
	"database/sql"
	"log/slog"

	"github.com/IliaW/pay-gate/internal/model"
	"github.com/lib/pq"
)

type SignatureStorage interface {
	GetSignatures() []model.CrawlerSignature
}

type SignatureRepository struct {
	db *sql.DB
}

func NewSignatureRepository(db *sql.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// GetSignatures loads the crawler signature table ordered by priority.
// The order is a deliberate matching priority, not alphabetical. Returns nil
// on any error so the caller can fall back to the built-in table.
func (sr *SignatureRepository) GetSignatures() []model.CrawlerSignature {
	var signatures []model.CrawlerSignature
	rows, err := sr.db.Query("SELECT name, company, user_agent_patterns FROM pay_gate.crawler_signature ORDER BY priority")
	if err != nil {
		slog.Error("failed to get crawler signatures from the database.", slog.String("err", err.Error()))
		return nil
	}
	defer func(rows *sql.Rows) {
		err = rows.Close()
		if err != nil {
			slog.Error("failed to close rows.", slog.String("err", err.Error()))
		}
	}(rows)

	for rows.Next() {
		var sig model.CrawlerSignature
		if err = rows.Scan(&sig.Name, &sig.Company, pq.Array(&sig.UserAgentPatterns)); err != nil {
			slog.Error("failed to scan crawler signature from the database.", slog.String("err", err.Error()))
			return nil
		}
		signatures = append(signatures, sig)
	}

	if err = rows.Err(); err != nil {
		slog.Error("failed to get crawler signatures from the database.", slog.String("err", err.Error()))
		return nil
	}
	if len(signatures) == 0 {
		slog.Debug("no crawler signatures found in the database.")
		return nil
	}
	slog.Debug("crawler signatures loaded.", slog.Any("size", len(signatures)))
	return signatures
}
