package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaehyun-ko/newsight/internal/models"
)

// CreateDataset inserts a new dataset and its records in a single
// transaction and returns the dataset id.
func (s *Store) CreateDataset(name, source string, records []models.Record) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("dataset name cannot be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.Exec("INSERT INTO datasets (id, name, source, created_at) VALUES (?, ?, ?, ?)",
		id, name, source, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create dataset: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (dataset_id, position, title, url, content, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(id, i, rec.Title, rec.URL, rec.Content, rec.PublishedAt); err != nil {
			return "", fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetDataset retrieves a dataset by id, including its record count.
func (s *Store) GetDataset(id string) (*models.Dataset, error) {
	var d models.Dataset
	err := s.db.QueryRow(`
		SELECT d.id, d.name, d.source, d.created_at, COUNT(r.id)
		FROM datasets d
		LEFT JOIN records r ON r.dataset_id = d.id
		WHERE d.id = ?
		GROUP BY d.id
	`, id).Scan(&d.ID, &d.Name, &d.Source, &d.CreatedAt, &d.RecordCount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DatasetExistsByName reports whether a dataset with the given name exists.
// Used by the importer to skip files that were already imported.
func (s *Store) DatasetExistsByName(name string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM datasets WHERE name = ?", name).Scan(&count)
	return count > 0, err
}

// ListDatasets returns all datasets, newest first.
func (s *Store) ListDatasets() ([]*models.Dataset, error) {
	rows, err := s.db.Query(`
		SELECT d.id, d.name, d.source, d.created_at, COUNT(r.id)
		FROM datasets d
		LEFT JOIN records r ON r.dataset_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		var d models.Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.Source, &d.CreatedAt, &d.RecordCount); err != nil {
			return nil, err
		}
		datasets = append(datasets, &d)
	}
	return datasets, rows.Err()
}

// GetDatasetRecords returns all records of a dataset in input order.
func (s *Store) GetDatasetRecords(datasetID string) ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, dataset_id, position, title, url, content, published_at,
		       category, confidence, relevant, duplicate_of
		FROM records
		WHERE dataset_id = ?
		ORDER BY position ASC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var relevant sql.NullBool
		if err := rows.Scan(&rec.ID, &rec.DatasetID, &rec.Position, &rec.Title, &rec.URL,
			&rec.Content, &rec.PublishedAt, &rec.Category, &rec.Confidence, &relevant, &rec.DuplicateOf); err != nil {
			return nil, err
		}
		if relevant.Valid {
			rec.Relevant = &relevant.Bool
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveClassification writes a classification result back onto a record.
func (s *Store) SaveClassification(recordID int64, category string, confidence float64, relevant bool) error {
	_, err := s.db.Exec(
		"UPDATE records SET category = ?, confidence = ?, relevant = ? WHERE id = ?",
		category, confidence, relevant, recordID)
	return err
}

// MarkDuplicate records that a record is a duplicate of an earlier one.
func (s *Store) MarkDuplicate(recordID, keptRecordID int64) error {
	_, err := s.db.Exec("UPDATE records SET duplicate_of = ? WHERE id = ?", keptRecordID, recordID)
	return err
}

// DeleteDataset removes a dataset and, through the foreign key cascade,
// all of its records.
func (s *Store) DeleteDataset(id string) error {
	res, err := s.db.Exec("DELETE FROM datasets WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
