package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/wrangle/internal/bulk"
	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

func TestMapError(t *testing.T) {
	_, headerErr := frame.Parse([]byte("a,\"b\n"))
	_, emptyErr := frame.Parse(nil)
	_, typeErr := schema.ParseType("Decimal")
	_, suggestionErr := mechanic.Decode("Nope", nil)

	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "no dataset",
			err:         fmt.Errorf("rows: %w", ErrNoDataset),
			wantCode:    "DS001",
			wantMessage: "No dataset is loaded",
		},
		{
			name:        "out of bounds",
			err:         fmt.Errorf("update cell: %w", frame.ErrOutOfBounds),
			wantCode:    "DS002",
			wantMessage: "Row or column is outside the dataset",
		},
		{
			name:        "schema mismatch",
			err:         ErrSchemaMismatch,
			wantCode:    "DS003",
			wantMessage: "Schema does not match the dataset's columns",
		},
		{
			name:        "unknown type from parser",
			err:         typeErr,
			wantCode:    "VAL001",
			wantMessage: "Unknown column type",
		},
		{
			name:        "bad request",
			err:         fmt.Errorf("%w: column \"x\" is not a number", ErrBadRequest),
			wantCode:    "REQ001",
			wantMessage: "The request was malformed",
		},
		{
			name:        "invalid pattern",
			err:         fmt.Errorf("%w: missing closing )", bulk.ErrInvalidPattern),
			wantCode:    "VAL002",
			wantMessage: "Invalid regular expression",
		},
		{
			name:        "unknown suggestion",
			err:         suggestionErr,
			wantCode:    "VAL004",
			wantMessage: "Unknown or malformed suggestion",
		},
		{
			name:        "empty file wins over invalid csv",
			err:         emptyErr,
			wantCode:    "FILE005",
			wantMessage: "The file is empty",
		},
		{
			name:        "unreadable header",
			err:         headerErr,
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "session not found",
			err:         fmt.Errorf("get %s: %w", "abc", ErrSessionNotFound),
			wantCode:    "SES001",
			wantMessage: "Session not found",
		},
		{
			name:        "limiter full",
			err:         ErrTooManyLoads,
			wantCode:    "SES002",
			wantMessage: "System is busy loading other files",
		},
		{
			name:        "cancelled",
			err:         fmt.Errorf("load: %w", context.Canceled),
			wantCode:    "SES004",
			wantMessage: "Request was cancelled",
		},
		{
			name:        "file too large by pattern",
			err:         errors.New("http: request body too large"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "rate limit by pattern",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("Invalid UTF-8 in field 3"),
			wantCode:    "FILE003",
			wantMessage: "File contains invalid characters",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNoDataset)

	expected := "No dataset is loaded (Code: DS001). Load a CSV file first"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "sentinel is user facing",
			err:  fmt.Errorf("wrapped: %w", bulk.ErrEmptySearch),
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("session 42: %w", ErrTooManySessions)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Too many open sessions" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if userErr.User.Code != "SES003" {
			t.Errorf("Code = %q, want SES003", userErr.User.Code)
		}
		if !errors.Is(userErr, ErrTooManySessions) {
			t.Error("Unwrap() should reach the sentinel")
		}
	})
}
