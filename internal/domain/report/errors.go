package report

import "errors"

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrAlreadyReported = errors.New("doctor has already filed a report for this appointment")
	ErrNotCaseDoctor   = errors.New("only the original or current doctor may report on this appointment")
)
