package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"nexus_server/pkg/apperr"
)

func TestMissingRowErr(t *testing.T) {
	caller := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	other := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	tests := []struct {
		name       string
		owner      uuid.UUID
		lookupErr  error
		wantCode   string
		wantStatus int
	}{
		{
			name:       "row absent",
			lookupErr:  sql.ErrNoRows,
			wantCode:   apperr.CodeNotFound,
			wantStatus: 404,
		},
		{
			name:       "row owned by another user",
			owner:      other,
			wantCode:   apperr.CodeForbidden,
			wantStatus: 403,
		},
		{
			name:       "owner lookup failed",
			lookupErr:  fmt.Errorf("connection reset"),
			wantCode:   apperr.CodeNotFound,
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := missingRowErr(tt.owner, tt.lookupErr, caller, "alerta")

			var appErr *apperr.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *apperr.AppError, got %T", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
			if appErr.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", appErr.Status, tt.wantStatus)
			}
		})
	}
}
