package core

// # Error Codes Reference
//
// Every error that reaches a user is mapped to a message, a suggested action
// and a code they can quote back to support.
//
// # Dataset Errors (DS001-DS005)
//
//	DS001 - No dataset: nothing has been loaded into the session
//	        Action: Load a CSV file first
//	DS002 - Out of bounds: row or column is outside the dataset
//	        Action: Refresh and pick a cell inside the table
//	DS003 - Schema mismatch: one type per column was not supplied
//	        Action: Send exactly one type for every column
//	DS004 - Unknown correction: mode is not clear or revert
//	DS005 - Unknown bulk action: action type is not recognised
//
// # Validation Errors (VAL001-VAL004)
//
//	VAL001 - Unknown type name
//	VAL002 - Invalid regular expression
//	VAL003 - Empty search text
//	VAL004 - Unknown suggestion kind or malformed parameters
//
// # File Errors (FILE001-FILE005)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV (header missing or unreadable)
//	FILE003 - Encoding error
//	FILE004 - No file provided
//	FILE005 - Empty file
//
// # Session Errors (SES001-SES004)
//
//	SES001 - Session not found or expired
//	SES002 - Load limiter full
//	SES003 - Too many open sessions
//	SES004 - Request cancelled or timed out
//
// # Request Errors (REQ001)
//
//	REQ001 - Malformed request: bad path parameter or body
//
// # Authentication (AUTH001-AUTH002)
//
//	AUTH001 - Missing X-API-Key header
//	AUTH002 - Unknown API key
//	These are written by the HTTP middleware before any handler runs.
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
//	ERR000 - Anything else. Check the logs for the technical error.
//
// # Matching
//
// MapError checks the sentinel table with errors.Is first, in order. Errors
// that carry no sentinel (strings from a proxy, a wrapped third-party error)
// fall back to case-insensitive substring patterns. The first match wins in
// both tables, so ErrEmpty sits before ErrHeader.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/wrangle/internal/bulk"
	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorSentinel struct {
	target error
	msg    UserMessage
}

var (
	msgNoDataset = UserMessage{
		Message: "No dataset is loaded",
		Action:  "Load a CSV file first",
		Code:    "DS001",
	}
	msgOutOfBounds = UserMessage{
		Message: "Row or column is outside the dataset",
		Action:  "Refresh and pick a cell inside the table",
		Code:    "DS002",
	}
	msgSchemaMismatch = UserMessage{
		Message: "Schema does not match the dataset's columns",
		Action:  "Send exactly one type for every column",
		Code:    "DS003",
	}
	msgUnknownCorrection = UserMessage{
		Message: "Unknown correction mode",
		Action:  "Use clear or revert",
		Code:    "DS004",
	}
	msgUnknownAction = UserMessage{
		Message: "Unknown bulk action",
		Action:  "Use FindReplace or RegexReplace",
		Code:    "DS005",
	}
	msgUnknownType = UserMessage{
		Message: "Unknown column type",
		Action:  "Use one of: Text, Integer, Float, Boolean, Email, PhoneUS, Date, Uuid, Time, Currency, Percentage",
		Code:    "VAL001",
	}
	msgInvalidPattern = UserMessage{
		Message: "Invalid regular expression",
		Action:  "Check the pattern syntax",
		Code:    "VAL002",
	}
	msgEmptySearch = UserMessage{
		Message: "Search text is empty",
		Action:  "Enter the text to find",
		Code:    "VAL003",
	}
	msgUnknownSuggestion = UserMessage{
		Message: "Unknown or malformed suggestion",
		Action:  "Apply a suggestion returned by the suggestions endpoint",
		Code:    "VAL004",
	}
	msgFileTooLarge = UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the first line is a comma-separated header",
		Code:    "FILE002",
	}
	msgEncoding = UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save file as UTF-8 encoding",
		Code:    "FILE003",
	}
	msgNoFile = UserMessage{
		Message: "No file was provided",
		Action:  "Please select a CSV file to load",
		Code:    "FILE004",
	}
	msgEmptyFile = UserMessage{
		Message: "The file is empty",
		Action:  "Please load a CSV file with a header row",
		Code:    "FILE005",
	}
	msgSessionNotFound = UserMessage{
		Message: "Session not found",
		Action:  "The session may have expired. Please create a new one",
		Code:    "SES001",
	}
	msgBusy = UserMessage{
		Message: "System is busy loading other files",
		Action:  "Please wait a moment and try again",
		Code:    "SES002",
	}
	msgTooManySessions = UserMessage{
		Message: "Too many open sessions",
		Action:  "Close a session you no longer need, or try again later",
		Code:    "SES003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "SES004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "SES004",
	}
	msgBadRequest = UserMessage{
		Message: "The request was malformed",
		Action:  "Check the parameters and body of the request",
		Code:    "REQ001",
	}
	msgRateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
)

var errorSentinels = []errorSentinel{
	{ErrNoDataset, msgNoDataset},
	{frame.ErrOutOfBounds, msgOutOfBounds},
	{ErrSchemaMismatch, msgSchemaMismatch},
	{ErrUnknownCorrection, msgUnknownCorrection},
	{bulk.ErrUnknownAction, msgUnknownAction},
	{schema.ErrUnknownType, msgUnknownType},
	{bulk.ErrInvalidPattern, msgInvalidPattern},
	{bulk.ErrEmptySearch, msgEmptySearch},
	{mechanic.ErrUnknownSuggestion, msgUnknownSuggestion},
	{ErrFileTooLarge, msgFileTooLarge},
	{frame.ErrEmpty, msgEmptyFile},
	{frame.ErrHeader, msgInvalidCSV},
	{ErrNoFile, msgNoFile},
	{ErrSessionNotFound, msgSessionNotFound},
	{ErrTooManyLoads, msgBusy},
	{ErrTooManySessions, msgTooManySessions},
	{ErrBadRequest, msgBadRequest},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that lost their sentinel on the way in.
var errorPatterns = []errorPattern{
	{"file too large", msgFileTooLarge},
	{"request body too large", msgFileTooLarge},
	{"empty file", msgEmptyFile},
	{"invalid csv", msgInvalidCSV},
	{"encoding error", msgEncoding},
	{"invalid utf-8", msgEncoding},
	{"no file provided", msgNoFile},
	{"session not found", msgSessionNotFound},
	{"too many concurrent loads", msgBusy},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
	{"timeout", msgTimeout},
	{"rate limit", msgRateLimited},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := session.UpdateSchema(ctx, []string{"Integer"})
//	msg := MapError(err)
//	// msg.Code == "DS003"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range errorSentinels {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message. Error() returns
// the user message; Unwrap() returns the technical error for logging and
// errors.Is.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
