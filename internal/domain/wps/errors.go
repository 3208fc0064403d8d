package wps

import "errors"

var (
	ErrBatchNotFound            = errors.New("wps batch not found")
	ErrBatchNotDraft            = errors.New("wps batch must be draft")
	ErrBatchNotSubmitted        = errors.New("wps batch must be submitted before export")
	ErrNoEmployees              = errors.New("No employees remaining for WPS")
	ErrEmployeesAlreadyReported = errors.New("employees already reported in another submitted wps batch")
	ErrNoData                   = errors.New("No Data")
	ErrInvalidFilters           = errors.New("invalid wps filters")
	ErrUnsupportedFormat        = errors.New("unsupported export format")
)
