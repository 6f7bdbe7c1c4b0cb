package persistence

import (
	"errors"
	"testing"
)

type fakeResult struct {
	rows    int64
	rowsErr error
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }

func (f fakeResult) RowsAffected() (int64, error) { return f.rows, f.rowsErr }

func TestInsertedRows(t *testing.T) {
	tests := []struct {
		name    string
		result  fakeResult
		want    int
		wantErr bool
	}{
		{"all inserted", fakeResult{rows: 25}, 25, false},
		{"duplicates skipped", fakeResult{rows: 3}, 3, false},
		{"none inserted", fakeResult{rows: 0}, 0, false},
		{"count unavailable", fakeResult{rowsErr: errors.New("not supported")}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := insertedRows(tt.result)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			// The quota counter consumes this value; it must never report
			// more rows than the driver confirmed.
			if got != tt.want {
				t.Errorf("insertedRows = %d, want %d", got, tt.want)
			}
		})
	}
}
