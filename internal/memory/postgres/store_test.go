package postgres

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestExtractFacts(t *testing.T) {
	facts := extractFacts("Hi, my name is Jonas Berg. My company is Nordic Ventures. Reach me at jonas@example.com")

	has := make(map[string]bool, len(facts))
	for _, fact := range facts {
		has[fact] = true
	}
	for _, want := range []string{
		"email: jonas@example.com",
		"name: Jonas Berg",
		"company: Nordic Ventures",
	} {
		if !has[want] {
			t.Fatalf("fact %q missing from %v", want, facts)
		}
	}
}

func TestExtractFactsNothingToExtract(t *testing.T) {
	if facts := extractFacts("what is the vat rate?"); len(facts) != 0 {
		t.Fatalf("facts = %v, want none", facts)
	}
}

func TestExtractAndPersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("user-1", "my name is Jo", "hello Jo").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_facts").
		WithArgs("user-1", "name: Jo").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := store.ExtractAndPersist(context.Background(), "user-1", "my name is Jo", "hello Jo")
	if err != nil {
		t.Fatalf("ExtractAndPersist() error: %v", err)
	}
	if report.FactsExtracted != 1 || report.FactsSaved != 1 || !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExtractAndPersistDuplicateFactNotCounted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Conflict: zero rows affected, so the fact is extracted but not
	// counted as saved.
	mock.ExpectExec("INSERT INTO user_facts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	report, err := store.ExtractAndPersist(context.Background(), "user-1", "my name is Jo", "hi")
	if err != nil {
		t.Fatalf("ExtractAndPersist() error: %v", err)
	}
	if report.FactsExtracted != 1 || report.FactsSaved != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestFacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"fact"}).
		AddRow("name: Jo").
		AddRow("origin: Sweden")
	mock.ExpectQuery("SELECT fact FROM user_facts").
		WithArgs("user-1", 20).
		WillReturnRows(rows)

	facts, err := store.Facts(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("Facts() error: %v", err)
	}
	if len(facts) != 2 || facts[0] != "name: Jo" {
		t.Fatalf("facts = %v", facts)
	}
}
