// Package postgres implements the fact-store collaborator over a
// PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Store persists extracted conversation facts.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, e.g. a shared pool or a test
// double.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ExtractAndPersist pulls durable facts out of one exchange and stores
// them, along with the exchange itself, in a single transaction.
func (s *Store) ExtractAndPersist(ctx context.Context, userID, query, answer string) (*models.FactReport, error) {
	start := time.Now()
	facts := extractFacts(query)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (user_id, query, answer, created_at) VALUES ($1, $2, $3, NOW())`,
		userID, query, answer,
	); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	saved := 0
	for _, fact := range facts {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO user_facts (user_id, fact, created_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (user_id, fact) DO NOTHING`,
			userID, fact,
		)
		if err != nil {
			return nil, fmt.Errorf("insert fact: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			saved += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &models.FactReport{
		FactsExtracted: len(facts),
		FactsSaved:     saved,
		ProcessingTime: time.Since(start),
		Success:        true,
	}, nil
}

// Facts returns the stored facts for a user, newest first.
func (s *Store) Facts(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fact FROM user_facts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

var (
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	statementRes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z '\-]{1,60})`),
		regexp.MustCompile(`(?i)\bi am from ([A-Za-z][A-Za-z '\-]{1,60})`),
		regexp.MustCompile(`(?i)\bmy (?:company|business) is (?:called )?([A-Za-z0-9][A-Za-z0-9 '\-]{1,60})`),
		regexp.MustCompile(`(?i)\bmy nationality is ([A-Za-z][A-Za-z '\-]{1,40})`),
	}
	statementTags = []string{"name", "origin", "company", "nationality"}
)

// extractFacts applies the statement heuristics to the user's query.
// Only the query is mined; answers are generated text and unreliable
// as a source of user facts.
func extractFacts(query string) []string {
	seen := make(map[string]struct{})
	var facts []string
	add := func(fact string) {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			return
		}
		if _, dup := seen[fact]; dup {
			return
		}
		seen[fact] = struct{}{}
		facts = append(facts, fact)
	}

	for _, email := range emailRe.FindAllString(query, -1) {
		add("email: " + email)
	}
	for i, re := range statementRes {
		if m := re.FindStringSubmatch(query); m != nil {
			add(statementTags[i] + ": " + strings.TrimSpace(m[1]))
		}
	}
	return facts
}
